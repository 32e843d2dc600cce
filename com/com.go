// Package com implements the terminal side of an AT command interface: it sends command lines to a
// device, collects the information text until the final result code, and dispatches unsolicited
// result codes to registered indication handlers.
package com

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ftl/m2mb-atp/atp"
)

const (
	readBufferSize        = 1024
	atSendingQueueTimeout = 500 * time.Millisecond

	ctrlZ = 0x1a
	esc   = 0x1b
)

// ErrQueueTimeout is returned when a command could not be queued in time.
var ErrQueueTimeout = errors.New("AT sending queue timeout")

// Option configures a COM.
type Option func(*COM)

// WithTrace traces all communication to the given writer.
func WithTrace(tracer io.Writer) Option {
	return func(c *COM) {
		c.tracer = tracer
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *COM) {
		c.log = logger
	}
}

// NewWithTrace creates a new COM instance that traces all communications to a second writer.
func NewWithTrace(device io.ReadWriter, tracer io.Writer) *COM {
	return New(device, WithTrace(tracer))
}

// New creates a new COM instance using the given io.ReadWriter to communicate with the device.
func New(device io.ReadWriter, opts ...Option) *COM {
	commands := make(chan command)
	result := &COM{
		commands:    commands,
		closed:      make(chan struct{}),
		indications: make(map[string]indicationConfig),
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(result)
	}

	go result.run(device, readLoop(device), commands)

	return result
}

// COM allows to communicate with a device using AT commands.
type COM struct {
	commands chan<- command
	closed   chan struct{}
	tracer   io.Writer
	log      *zap.Logger

	indicationsLock sync.RWMutex
	indications     map[string]indicationConfig
}

// session is the state of the communication loop.
type session struct {
	command    *command
	cancelled  <-chan struct{}
	indication *indication
}

func (c *COM) run(device io.Writer, lines <-chan string, commands <-chan command) {
	c.trace("****\n* SESSION START\n****\n")
	defer c.trace("****\n* SESSION END\n****\n")
	defer close(c.closed)

	var s session
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case line, valid := <-lines:
			if !valid {
				if s.command != nil {
					s.command.Abort(io.EOF)
				}
				return
			}
			c.tracef("rx:  %s\nhex: %X\n--\n", line, line)
			c.receive(&s, line)
		case <-s.cancelled:
			s.cancelled = nil
			s.command = nil
		case <-tick.C:
		}

		if s.command != nil {
			continue
		}
		select {
		case cmd := <-commands:
			c.send(&s, device, cmd)
		default:
		}
	}
}

// receive passes the line to the active indication, the active command, or a new indication.
func (c *COM) receive(s *session, line string) {
	if s.indication != nil {
		s.indication.AddLine(line)
		if s.indication.Complete() {
			s.indication = nil
		}
		return
	}

	s.indication = c.newIndication(line)
	switch {
	case s.indication != nil:
	case s.command != nil:
		s.command.AddLine(line)
		if s.command.Complete() {
			s.cancelled = nil
			s.command = nil
		}
	default:
		c.log.Debug("unexpected line", zap.String("line", line))
	}
}

// send writes the command line, terminated with CR LF unless it ends with Ctrl-Z or ESC.
func (c *COM) send(s *session, device io.Writer, cmd command) {
	if len(cmd.request) == 0 {
		return
	}

	tx := []byte(cmd.request)
	if last := tx[len(tx)-1]; last != ctrlZ && last != esc {
		tx = append(tx, '\r', '\n')
	}
	c.tracef("tx:  %s\nhex: %X\n--\n", tx, tx)
	if _, err := device.Write(tx); err != nil {
		cmd.Abort(err)
		return
	}
	s.cancelled = cmd.cancelled
	s.command = &cmd
}

func readLoop(r io.Reader) <-chan string {
	lines := make(chan string, 1)
	go func() {
		buf := make([]byte, readBufferSize)
		currentLine := make([]byte, 0, readBufferSize)
		for {
			n, err := r.Read(buf)
			if err != nil {
				if len(currentLine) > 0 {
					lines <- string(currentLine)
				}
				close(lines)
				return
			}

			for _, b := range buf[0:n] {
				switch {
				case b == '\n':
					if len(currentLine) == 0 {
						continue
					}
					lines <- string(currentLine)
					currentLine = currentLine[:0]
				case b < ' ':
					continue
				default:
					currentLine = append(currentLine, b)
				}
			}
		}
	}()
	return lines
}

// Closed reports if the connection to the device is closed.
func (c *COM) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Done is closed when the connection to the device is closed.
func (c *COM) Done() <-chan struct{} {
	return c.closed
}

// AddIndication registers a handler for unsolicited result codes starting with the given prefix.
// The handler receives the first line and the given number of trailing lines.
func (c *COM) AddIndication(prefix string, trailingLines int, handler func(lines []string)) error {
	if prefix == "" {
		return fmt.Errorf("empty indication prefix")
	}
	config := indicationConfig{
		prefix:        strings.ToUpper(prefix),
		trailingLines: trailingLines,
		handler:       handler,
	}

	c.indicationsLock.Lock()
	defer c.indicationsLock.Unlock()
	c.indications[config.prefix] = config
	return nil
}

func (c *COM) newIndication(line string) *indication {
	c.indicationsLock.RLock()
	defer c.indicationsLock.RUnlock()

	for _, config := range c.indications {
		result := config.NewIfMatches(line)
		if result != nil {
			return result
		}
	}
	return nil
}

// AT sends the request and returns the information text lines of the response. A final result code
// other than OK is returned as *atp.FinalResultError.
func (c *COM) AT(ctx context.Context, request string) ([]string, error) {
	cmd := command{
		request:   request,
		response:  make(chan []string, 1),
		err:       make(chan error, 1),
		cancelled: ctx.Done(),
		completed: make(chan struct{}),
	}

	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, io.EOF
	case <-time.After(atSendingQueueTimeout):
		return nil, ErrQueueTimeout
	}

	select {
	case response := <-cmd.response:
		return response, nil
	case err := <-cmd.err:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ATs sends all requests one after another and stops at the first error.
func (c *COM) ATs(ctx context.Context, requests ...string) error {
	for _, request := range requests {
		_, err := c.AT(ctx, request)
		if err != nil {
			return fmt.Errorf("%s failed: %w", request, err)
		}
	}
	return nil
}

// Request implements the Requester interface of the command builders.
func (c *COM) Request(ctx context.Context, request string) ([]string, error) {
	return c.AT(ctx, request)
}

// SendText sends a command that prompts for text input, e.g. AT+CMGS, followed by the text and Ctrl-Z.
func (c *COM) SendText(ctx context.Context, request string, text string) ([]string, error) {
	return c.AT(ctx, request+"\r\n"+text+string([]byte{ctrlZ}))
}

func (c *COM) trace(args ...any) {
	if c.tracer == nil {
		return
	}
	fmt.Fprint(c.tracer, args...)
}

func (c *COM) tracef(format string, args ...any) {
	if c.tracer == nil {
		return
	}
	fmt.Fprintf(c.tracer, format, args...)
}

type indicationConfig struct {
	prefix        string
	trailingLines int
	handler       func(lines []string)
}

func (c *indicationConfig) NewIfMatches(line string) *indication {
	if !strings.HasPrefix(strings.ToUpper(line), c.prefix) {
		return nil
	}
	result := &indication{
		config: *c,
		lines:  []string{line},
	}
	if result.Complete() {
		c.handler([]string{line})
		return nil
	}

	return result
}

type indication struct {
	config indicationConfig
	lines  []string
}

func (ind *indication) AddLine(line string) {
	if ind.Complete() {
		return
	}

	ind.lines = append(ind.lines, line)
	if ind.Complete() {
		go func() {
			ind.config.handler(ind.lines)
		}()
	}
}

func (ind *indication) Complete() bool {
	return len(ind.lines) >= ind.config.trailingLines+1
}

type command struct {
	lines     []string
	request   string
	response  chan []string
	err       chan error
	cancelled <-chan struct{}
	completed chan struct{}
}

func (c *command) AddLine(line string) {
	select {
	case <-c.cancelled:
		return
	case <-c.completed:
		return
	default:
	}

	saniLine := strings.TrimSpace(line)
	switch {
	case c.isEcho(saniLine):
		return
	case strings.HasPrefix(saniLine, ">"):
		// text input prompt, possibly followed by the echoed text
		return
	}

	result, final := atp.ParseResultLine(saniLine)
	switch {
	case !final:
		c.lines = append(c.lines, line)
	case result.Final == atp.OK:
		c.response <- c.lines
		close(c.completed)
	default:
		c.err <- &atp.FinalResultError{Result: result, Line: line}
		close(c.completed)
	}
}

// isEcho reports if the line is the echo of the command line sent by this command.
func (c *command) isEcho(line string) bool {
	if len(c.lines) > 0 || line == "" {
		return false
	}
	request := c.request
	if i := strings.IndexAny(request, "\r\n"); i >= 0 {
		request = request[0:i]
	}
	return strings.EqualFold(line, strings.TrimSpace(request))
}

func (c *command) Abort(err error) {
	select {
	case <-c.completed:
		return
	default:
	}
	c.err <- err
	close(c.completed)
}

func (c *command) Complete() bool {
	select {
	case <-c.cancelled:
		return true
	case <-c.completed:
		return true
	default:
		return false
	}
}
