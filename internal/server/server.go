// Package server serves AT instances on a serial port and on TCP connections.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ftl/m2mb-atp/atp"
	"github.com/ftl/m2mb-atp/internal/logging"
)

// ErrNoFreeInstance is returned if all AT instances are in use.
var ErrNoFreeInstance = errors.New("no free AT instance")

// SerialInstance is the id of the AT instance on the serial port, TCP connections use the ids above.
const SerialInstance = 0

const busy = "\r\nNO CARRIER\r\n"

// Server assigns AT instances to transports.
type Server struct {
	atp            *atp.ATP
	log            *zap.Logger
	maxConnections int
	wg             sync.WaitGroup
}

// New returns a server that accepts at most maxConnections TCP connections at the same time.
func New(a *atp.ATP, logger *zap.Logger, maxConnections int) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		atp:            a,
		log:            logger,
		maxConnections: maxConnections,
	}
}

// ServeDevice serves the serial AT instance on the given device until the device is closed or the
// context is done.
func (s *Server) ServeDevice(ctx context.Context, device io.ReadWriter) error {
	instance, err := s.atp.Serve(ctx, SerialInstance, device)
	if err != nil {
		return err
	}
	logging.Session(s.log, uuid.New().String(), SerialInstance).Info("serial instance started")
	select {
	case <-instance.Done():
	case <-ctx.Done():
		instance.Close()
	}
	return nil
}

// Serve accepts TCP connections on the given listener until the context is done. Every connection
// gets its own AT instance.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		listener.Close()
	})
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("cannot accept connection: %w", err)
		}

		if err := s.serveConnection(ctx, conn); err != nil {
			s.log.Warn("connection rejected", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			conn.Write([]byte(busy))
			conn.Close()
		}
	}
}

func (s *Server) serveConnection(ctx context.Context, conn net.Conn) error {
	for id := SerialInstance + 1; id <= s.maxConnections; id++ {
		if _, used := s.atp.Instance(id); used {
			continue
		}
		instance, err := s.atp.Serve(ctx, id, conn)
		if errors.Is(err, atp.ErrInstanceInUse) {
			continue
		}
		if err != nil {
			return err
		}

		log := logging.Session(s.log, uuid.New().String(), id)
		log.Info("connection accepted", zap.Stringer("remote", conn.RemoteAddr()))
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			<-instance.Done()
			log.Info("connection closed")
		}()
		return nil
	}
	return ErrNoFreeInstance
}
