package atp

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	readBufferSize = 1024

	ctrlZ = 0x1a
	esc   = 0x1b
	del   = 0x7f

	smsTextPrompt  = "> "
	m2mWritePrompt = ">>>"

	// one unit of S12 according to [V.250] 6.3.x
	guardTimeUnit = 20 * time.Millisecond
)

// ModeOption configures an input mode when it is entered.
type ModeOption func(*delegation)

// WithExpectedLength sets the number of bytes to collect in InputModeM2MWrite.
func WithExpectedLength(n int) ModeOption {
	return func(d *delegation) {
		d.expected = n
	}
}

type delegation struct {
	mode     InputMode
	buffer   []byte
	expected int
	complete bool
	lastCR   bool

	// escape sequence detection
	lastRx   time.Time
	escCount int
	held     []byte
}

type operation struct {
	fn     func() error
	result chan error
}

// Instance is one AT command parser instance bound to a transport.
type Instance struct {
	id     int
	atp    *ATP
	device io.ReadWriter
	log    *zap.Logger

	ops       chan operation
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	events    *eventQueue

	state atomic.Int32
	mode  atomic.Int32

	// owned by the loop goroutine
	line         []byte
	echo         []byte
	swallowLF    bool
	lastLine     string
	pending      []byte
	queue        []Request
	current      *Request
	handler      Handler
	delegation   *delegation
	releaseTimer *time.Timer
	guardTimer   *time.Timer
}

func newInstance(a *ATP, id int, device io.ReadWriter) *Instance {
	return &Instance{
		id:      id,
		atp:     a,
		device:  device,
		log:     a.log.With(zap.Int("instance", id)),
		ops:     make(chan operation),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		events:  newEventQueue(),
		line:    make([]byte, 0, 256),
	}
}

// ID of this instance.
func (inst *Instance) ID() int {
	return inst.id
}

// State returns the current state of the instance.
func (inst *Instance) State() State {
	return State(inst.state.Load())
}

// InputMode returns the currently active input mode.
func (inst *Instance) InputMode() InputMode {
	return InputMode(inst.mode.Load())
}

// Done is closed when the instance stopped.
func (inst *Instance) Done() <-chan struct{} {
	return inst.done
}

// Close stops the instance and closes its transport if it is an io.Closer.
// Close must not be called from within a handler that waits for its return value before releasing.
func (inst *Instance) Close() error {
	inst.closeOnce.Do(func() {
		close(inst.closing)
	})
	<-inst.done
	return nil
}

// MsgOut sends an information text. While no command is dispatched it is sent as unsolicited result.
func (inst *Instance) MsgOut(msg string) error {
	return inst.do(func() error {
		inst.write(inst.format().FormatInfo(msg))
		return nil
	})
}

// Release terminates the dispatched command with the given result. It must be called exactly once
// for every CallbackInd, with the request of that event. A request that is no longer dispatched,
// e.g. because its release timed out, is rejected with ErrNotDispatched.
func (inst *Instance) Release(request *Request, result Result) error {
	return inst.do(func() error {
		if !inst.dispatched(request) {
			return ErrNotDispatched
		}
		return inst.release(result)
	})
}

// ChangeInputMode switches how the following input is interpreted. Any mode but InputModeCommand
// delegates the input to the handler of the dispatched request.
func (inst *Instance) ChangeInputMode(request *Request, mode InputMode, opts ...ModeOption) error {
	return inst.do(func() error {
		if !inst.dispatched(request) {
			return ErrNotDispatched
		}
		return inst.changeInputMode(mode, opts...)
	})
}

// WriteData sends raw data while the request is delegated. The handler receives a BufferEmptyInd
// when the data was written.
func (inst *Instance) WriteData(request *Request, data []byte) error {
	return inst.do(func() error {
		if !inst.dispatched(request) {
			return ErrNotDispatched
		}
		if inst.State() != Delegated {
			return ErrNotDelegated
		}
		inst.write(data)
		inst.deliver(Event{Kind: DelegationInd, Delegation: BufferEmptyInd})
		return nil
	})
}

// Param returns the current value of the given profile parameter for this instance.
func (inst *Instance) Param(name string) (string, error) {
	return inst.atp.profile.Get(inst.id, name)
}

func (inst *Instance) do(fn func() error) error {
	op := operation{
		fn:     fn,
		result: make(chan error, 1),
	}

	select {
	case inst.ops <- op:
	case <-inst.done:
		return ErrInstanceClosed
	}

	select {
	case err := <-op.result:
		return err
	case <-inst.done:
		select {
		case err := <-op.result:
			return err
		default:
			return ErrInstanceClosed
		}
	}
}

func (inst *Instance) start(ctx context.Context) {
	chunks := inst.readLoop()
	go inst.worker()
	go inst.run(ctx, chunks)
}

func (inst *Instance) readLoop() <-chan []byte {
	chunks := make(chan []byte, 1)
	go func() {
		defer close(chunks)
		buf := make([]byte, readBufferSize)
		for {
			n, err := inst.device.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[0:n])
				select {
				case chunks <- chunk:
				case <-inst.done:
					return
				}
			}
			if err == io.EOF {
				return
			} else if err != nil {
				inst.log.Debug("read failed", zap.Error(err))
				return
			}
		}
	}()
	return chunks
}

func (inst *Instance) run(ctx context.Context, chunks <-chan []byte) {
	inst.atp.tracef("****\n* SESSION START %d\n****\n", inst.id)
	defer inst.atp.tracef("****\n* SESSION END %d\n****\n", inst.id)
	defer inst.shutdown()

	for {
		select {
		case chunk, valid := <-chunks:
			if !valid {
				inst.connectionClosed()
				return
			}
			inst.atp.tracef("rx %d: %s\nhex: %X\n--\n", inst.id, chunk, chunk)
			inst.receive(chunk)
		case op := <-inst.ops:
			op.result <- op.fn()
		case <-timerC(inst.releaseTimer):
			inst.releaseTimer = nil
			inst.releaseTimedOut()
		case <-timerC(inst.guardTimer):
			inst.guardTimer = nil
			inst.guardElapsed()
		case <-ctx.Done():
			return
		case <-inst.closing:
			return
		}
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (inst *Instance) shutdown() {
	inst.stopReleaseTimer()
	inst.stopGuardTimer()
	inst.setState(Closed)
	close(inst.done)
	if closer, ok := inst.device.(io.Closer); ok {
		closer.Close()
	}
	inst.events.close()
	inst.atp.removeInstance(inst)
}

func (inst *Instance) worker() {
	for {
		item, ok := inst.events.next()
		if !ok {
			return
		}
		inst.handle(item)
	}
}

func (inst *Instance) handle(item queuedEvent) {
	defer func() {
		if r := recover(); r != nil {
			inst.log.Error("handler panicked", zap.Stringer("event", item.event), zap.Any("panic", r))
		}
	}()
	inst.log.Debug("event", zap.Stringer("event", item.event))
	item.handler.Handle(inst, item.event)
}

func (inst *Instance) setState(state State) {
	inst.state.Store(int32(state))
}

func (inst *Instance) setMode(mode InputMode) {
	inst.mode.Store(int32(mode))
}

func (inst *Instance) write(p []byte) {
	if len(p) == 0 {
		return
	}
	inst.atp.tracef("tx %d: %s\nhex: %X\n--\n", inst.id, p, p)
	if _, err := inst.device.Write(p); err != nil {
		inst.log.Warn("write failed", zap.Error(err))
	}
}

func (inst *Instance) intParam(name string, fallback int) int {
	result, err := inst.atp.profile.GetInt(inst.id, name)
	if err != nil {
		return fallback
	}
	return result
}

func (inst *Instance) format() ResultFormat {
	result := DefaultResultFormat
	result.Verbose = inst.intParam(ParamVerbose, 1) == 1
	result.Quiet = inst.intParam(ParamQuiet, 0) == 1
	result.ErrorMode = inst.intParam(ParamErrorMode, 0)
	result.CR = byte(inst.intParam(ParamCR, '\r'))
	result.LF = byte(inst.intParam(ParamLF, '\n'))
	return result
}

func (inst *Instance) receive(chunk []byte) {
	switch inst.State() {
	case Idle:
		inst.feedCommand(chunk)
	case Dispatched:
		inst.pending = append(inst.pending, inst.dropLF(chunk)...)
	case Delegated:
		inst.feedInput(inst.dropLF(chunk))
	}
}

// dropLF removes the line feed that directly follows the CR of the last command line.
func (inst *Instance) dropLF(data []byte) []byte {
	if !inst.swallowLF || len(data) == 0 {
		return data
	}
	inst.swallowLF = false
	if data[0] == '\n' {
		return data[1:]
	}
	return data
}

func (inst *Instance) feedCommand(data []byte) {
	echo := inst.intParam(ParamEcho, 1) == 1
	cr := byte(inst.intParam(ParamCR, '\r'))
	bs := byte(inst.intParam(ParamBS, '\b'))
	defer inst.flushEcho()

	for i := 0; i < len(data); i++ {
		c := data[i]
		if inst.swallowLF {
			inst.swallowLF = false
			if c == '\n' {
				continue
			}
		}
		if inst.State() != Idle {
			inst.pending = append(inst.pending, data[i:]...)
			return
		}
		if echo {
			inst.echo = append(inst.echo, c)
		}

		switch {
		case c == cr:
			line := string(inst.line)
			inst.line = inst.line[:0]
			inst.swallowLF = true
			inst.flushEcho()
			inst.processLine(line)
		case c == bs || c == del:
			if len(inst.line) > 0 {
				inst.line = inst.line[:len(inst.line)-1]
			}
		case c < ' ':
			continue
		default:
			inst.line = append(inst.line, c)
			if len(inst.line) == 2 && c == '/' && (inst.line[0] == 'A' || inst.line[0] == 'a') {
				inst.line = inst.line[:0]
				inst.flushEcho()
				inst.repeatLastLine()
			}
		}
	}
}

func (inst *Instance) flushEcho() {
	if len(inst.echo) == 0 {
		return
	}
	inst.write(inst.echo)
	inst.echo = inst.echo[:0]
}

func (inst *Instance) processLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if !hasATPrefix(line) {
		inst.log.Debug("ignoring line without AT prefix", zap.String("line", line))
		return
	}
	inst.lastLine = line

	requests, err := parseCommandLine(inst.id, line[2:])
	if err != nil {
		inst.log.Debug("invalid command line", zap.String("line", line), zap.Error(err))
		inst.finish(ResultError)
		return
	}
	if len(requests) == 0 {
		inst.finish(ResultOK)
		return
	}
	inst.queue = requests
	inst.dispatchNext()
}

func (inst *Instance) repeatLastLine() {
	if inst.lastLine == "" {
		inst.finish(ResultError)
		return
	}
	inst.processLine(inst.lastLine)
}

func (inst *Instance) dispatchNext() {
	request := inst.queue[0]
	inst.queue = inst.queue[1:]

	handler, ok := inst.atp.handler(request.Name)
	if !ok {
		inst.log.Debug("unknown command", zap.String("command", request.Name))
		inst.finish(ResultError)
		return
	}

	inst.current = &request
	inst.handler = handler
	inst.setState(Dispatched)
	inst.startReleaseTimer()
	inst.deliver(Event{Kind: CallbackInd})
}

// dispatched tells if the given request is the one the instance currently waits for.
func (inst *Instance) dispatched(request *Request) bool {
	return request != nil && request == inst.current
}

// deliver queues the event for the handler of the dispatched command.
func (inst *Instance) deliver(event Event) {
	if inst.current == nil || inst.handler == nil {
		return
	}
	event.Request = inst.current
	inst.events.push(queuedEvent{handler: inst.handler, event: event})
}

func (inst *Instance) release(result Result) error {
	state := inst.State()
	if state != Dispatched && state != Delegated {
		return ErrNotDispatched
	}
	inst.stopReleaseTimer()
	inst.leaveDelegation()
	inst.setState(Dispatched)

	if result.Successful() && len(inst.queue) > 0 {
		inst.current = nil
		inst.handler = nil
		inst.dispatchNext()
		return nil
	}
	inst.finish(result)
	return nil
}

// finish ends the command line with the given result and processes the input received meanwhile.
func (inst *Instance) finish(result Result) {
	inst.stopReleaseTimer()
	inst.leaveDelegation()
	inst.current = nil
	inst.handler = nil
	inst.queue = nil
	inst.setState(Idle)
	inst.write(inst.format().FormatResult(result))

	if len(inst.pending) > 0 {
		data := inst.pending
		inst.pending = nil
		inst.feedCommand(data)
	}
}

func (inst *Instance) releaseTimedOut() {
	state := inst.State()
	if state != Dispatched && state != Delegated {
		return
	}
	inst.log.Warn("command not released in time", zap.Stringer("request", inst.current), zap.Duration("timeout", inst.atp.releaseTimeout))
	inst.finish(CMEResult(CMEUnknown))
}

func (inst *Instance) startReleaseTimer() {
	inst.stopReleaseTimer()
	if inst.atp.releaseTimeout <= 0 {
		return
	}
	inst.releaseTimer = time.NewTimer(inst.atp.releaseTimeout)
}

func (inst *Instance) stopReleaseTimer() {
	if inst.releaseTimer == nil {
		return
	}
	inst.releaseTimer.Stop()
	inst.releaseTimer = nil
}

func (inst *Instance) changeInputMode(mode InputMode, opts ...ModeOption) error {
	if !mode.valid() {
		return ErrInvalidInputMode
	}
	state := inst.State()
	if state != Dispatched && state != Delegated {
		return ErrNotDispatched
	}

	if mode == InputModeCommand {
		if state == Delegated {
			inst.leaveDelegation()
			inst.setState(Dispatched)
		}
		return nil
	}

	d := &delegation{
		mode:   mode,
		lastRx: time.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if mode == InputModeM2MWrite && d.expected <= 0 {
		return ErrMissingExpectedLen
	}

	inst.leaveDelegation()
	inst.delegation = d
	inst.setMode(mode)
	inst.setState(Delegated)
	inst.log.Debug("input mode changed", zap.Stringer("mode", mode))

	f := inst.format()
	switch mode {
	case InputModeSMSText:
		inst.write(append([]byte{f.CR, f.LF}, smsTextPrompt...))
	case InputModeM2MWrite:
		inst.write(append([]byte{f.CR, f.LF}, m2mWritePrompt...))
	}

	if len(inst.pending) > 0 {
		data := inst.pending
		inst.pending = nil
		inst.feedInput(data)
	}
	return nil
}

func (inst *Instance) leaveDelegation() {
	inst.stopGuardTimer()
	inst.delegation = nil
	inst.setMode(InputModeCommand)
}

func (inst *Instance) feedInput(data []byte) {
	d := inst.delegation
	if d == nil || d.complete {
		inst.pending = append(inst.pending, data...)
		return
	}

	switch {
	case d.mode == InputModeSMSText:
		inst.feedSMSText(d, data)
	case d.mode == InputModeM2MWrite:
		inst.feedM2MWrite(d, data)
	case d.mode.escapable():
		inst.feedOnline(d, data)
	default:
		inst.deliverData(data)
	}
}

func (inst *Instance) feedSMSText(d *delegation, data []byte) {
	echo := inst.intParam(ParamEcho, 1) == 1
	f := inst.format()
	bs := byte(inst.intParam(ParamBS, '\b'))
	defer inst.flushEcho()

	for i, c := range data {
		lastCR := d.lastCR
		d.lastCR = false
		switch {
		case c == ctrlZ:
			d.complete = true
			inst.pending = append(inst.pending, data[i+1:]...)
			inst.flushEcho()
			inst.deliverText(d.buffer)
			return
		case c == esc:
			d.complete = true
			inst.pending = append(inst.pending, data[i+1:]...)
			inst.flushEcho()
			inst.deliver(Event{Kind: DelegationInd, Delegation: EscapeInd})
			return
		case c == bs || c == del:
			if len(d.buffer) > 0 {
				d.buffer = d.buffer[:len(d.buffer)-1]
				if echo {
					inst.echo = append(inst.echo, c)
				}
			}
		case c == f.CR:
			d.buffer = append(d.buffer, c)
			d.lastCR = true
			inst.flushEcho()
			inst.write(append([]byte{f.CR, f.LF}, smsTextPrompt...))
		case c == f.LF && lastCR:
			// the line feed of a CR LF line ending
		default:
			d.buffer = append(d.buffer, c)
			if echo {
				inst.echo = append(inst.echo, c)
			}
		}
	}
}

func (inst *Instance) deliverText(raw []byte) {
	data := make([]byte, len(raw))
	copy(data, raw)

	charset, err := inst.Param(ParamCharset)
	if err != nil {
		charset = CharsetIRA
	}
	text, err := DecodeText(charset, data)
	if err != nil {
		inst.log.Warn("cannot decode text input", zap.String("charset", charset), zap.Error(err))
		text = string(data)
	}
	inst.deliver(Event{Kind: DelegationInd, Delegation: DataInd, Data: data, Text: text})
}

func (inst *Instance) feedM2MWrite(d *delegation, data []byte) {
	n := d.expected - len(d.buffer)
	if n > len(data) {
		n = len(data)
	}
	d.buffer = append(d.buffer, data[0:n]...)
	if len(d.buffer) < d.expected {
		return
	}
	d.complete = true
	inst.pending = append(inst.pending, data[n:]...)
	inst.deliverData(d.buffer)
}

func (inst *Instance) deliverData(raw []byte) {
	if len(raw) == 0 {
		return
	}
	data := make([]byte, len(raw))
	copy(data, raw)
	inst.deliver(Event{Kind: DelegationInd, Delegation: DataInd, Data: data})
}

// feedOnline forwards transparent data and looks for the escape sequence: guard time of silence,
// three escape characters, guard time of silence ([V.250] 6.3.x, S2 and S12).
func (inst *Instance) feedOnline(d *delegation, data []byte) {
	now := time.Now()
	guard := time.Duration(inst.intParam(ParamGuardTime, 50)) * guardTimeUnit
	escChar := byte(inst.intParam(ParamEscapeChar, '+'))

	silent := now.Sub(d.lastRx) >= guard
	out := make([]byte, 0, len(data)+len(d.held))
	for _, c := range data {
		if c == escChar && d.escCount < 3 && (d.escCount > 0 || silent) {
			d.escCount++
			d.held = append(d.held, c)
			continue
		}
		if d.escCount > 0 {
			out = append(out, d.held...)
			d.held = d.held[:0]
			d.escCount = 0
		}
		out = append(out, c)
		silent = false
	}
	d.lastRx = now

	inst.stopGuardTimer()
	if d.escCount > 0 {
		inst.guardTimer = time.NewTimer(guard)
	}
	inst.deliverData(out)
}

func (inst *Instance) guardElapsed() {
	d := inst.delegation
	if d == nil || d.escCount == 0 {
		return
	}
	if d.escCount == 3 {
		d.escCount = 0
		d.held = nil
		d.complete = true
		inst.log.Debug("escape sequence detected")
		inst.deliver(Event{Kind: DelegationInd, Delegation: EscapeInd})
		return
	}

	held := d.held
	d.held = nil
	d.escCount = 0
	inst.deliverData(held)
}

func (inst *Instance) stopGuardTimer() {
	if inst.guardTimer == nil {
		return
	}
	inst.guardTimer.Stop()
	inst.guardTimer = nil
}

func (inst *Instance) connectionClosed() {
	inst.log.Debug("transport closed")
	if inst.State() == Delegated {
		inst.deliver(Event{Kind: DelegationInd, Delegation: CloseConInd})
	}
}

type queuedEvent struct {
	handler Handler
	event   Event
}

// eventQueue is an unbounded FIFO, so that the loop never blocks on a slow handler.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []queuedEvent
	closed bool
}

func newEventQueue() *eventQueue {
	result := &eventQueue{}
	result.cond = sync.NewCond(&result.mu)
	return result
}

func (q *eventQueue) push(item queuedEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, item)
	q.cond.Signal()
}

// next blocks until an item is available. It returns false when the queue is closed and empty.
func (q *eventQueue) next() (queuedEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return queuedEvent{}, false
	}
	result := q.items[0]
	q.items = q.items[1:]
	return result, true
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
