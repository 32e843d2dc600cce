// atpd serves the AT command parser on a serial port and on TCP connections.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ftl/m2mb-atp/atp"
	"github.com/ftl/m2mb-atp/internal/config"
	"github.com/ftl/m2mb-atp/internal/logging"
	"github.com/ftl/m2mb-atp/internal/server"
	"github.com/ftl/m2mb-atp/loopback"
	"github.com/ftl/m2mb-atp/profile"
	"github.com/ftl/m2mb-atp/serial"
	"github.com/ftl/m2mb-atp/sms"
	"github.com/ftl/m2mb-atp/v250"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseCLIFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(flags.ConfigPath, flags.ConfigPath == config.DefaultConfigPath)
	if err != nil {
		return err
	}
	flags.Apply(cfg)
	if err := cfg.Verify(); err != nil {
		return err
	}

	log, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openProfile(cfg.Profile, log)
	if err != nil {
		return err
	}

	options := []atp.Option{
		atp.WithLogger(log),
		atp.WithProfile(store),
		atp.WithReleaseTimeout(cfg.ReleaseTimeout.Value()),
	}
	tracer, err := openTrace(cfg.Trace)
	if err != nil {
		return err
	}
	if tracer != nil {
		defer tracer.Close()
		options = append(options, atp.WithTrace(tracer))
	}

	a, err := atp.New(options...)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := v250.Register(a, cfg.Identification); err != nil {
		return err
	}
	smsOptions := []sms.Option{sms.WithLogger(log.Named("sms"))}
	if cfg.SMS.OwnNumber != "" {
		smsOptions = append(smsOptions, sms.WithOwnNumber(cfg.SMS.OwnNumber))
	}
	if err := sms.Register(a, sms.NewStorage(cfg.SMS.Capacity), smsOptions...); err != nil {
		return err
	}
	if err := loopback.Register(a, log.Named("loopback")); err != nil {
		return err
	}
	log.Debug("commands registered", zap.Strings("commands", a.Commands()))

	// the shared part of the power-up profile, once all parameters are defined
	if store.HasSlot(profile.First) {
		if err := store.RestoreCommon(profile.First); err != nil {
			log.Warn("cannot restore power-up profile", zap.Error(err))
		}
	}

	srv := server.New(a, log, cfg.Listen.MaxConnections)
	group, ctx := errgroup.WithContext(ctx)

	if cfg.Serial.Enabled() {
		device, err := openSerial(cfg.Serial)
		if err != nil {
			return err
		}
		group.Go(func() error {
			return srv.ServeDevice(ctx, device)
		})
	}
	if cfg.Listen.Address != "" {
		listener, err := net.Listen("tcp", cfg.Listen.Address)
		if err != nil {
			return err
		}
		log.Info("listening", zap.String("address", listener.Addr().String()))
		group.Go(func() error {
			return srv.Serve(ctx, listener)
		})
	}

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openProfile(cfg config.ProfileConfig, log *zap.Logger) (*profile.Store, error) {
	var backend profile.Backend = profile.NewMemory()
	if cfg.Path != "" {
		var err error
		backend, err = profile.NewFile(cfg.Format, cfg.Path)
		if err != nil {
			return nil, err
		}
	}
	store := profile.NewStore(backend, profile.WithLogger(log.Named("profile")))
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func openTrace(filename string) (io.WriteCloser, error) {
	switch filename {
	case "":
		return nil, nil
	case "-":
		return nopCloser{os.Stderr}, nil
	default:
		return os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func openSerial(cfg config.SerialConfig) (io.ReadWriteCloser, error) {
	portName := cfg.Port
	if portName == "" {
		var err error
		portName, err = serial.FindPortName(cfg.Detect)
		if err != nil {
			return nil, fmt.Errorf("cannot find serial port %q: %w", cfg.Detect, err)
		}
	}
	return serial.Open(serial.Port{
		PortName:    portName,
		BaudRate:    cfg.Baud,
		FlowControl: cfg.FlowControl,
	})
}
