package atp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ftl/m2mb-atp/profile"
)

// ATP errors
var (
	ErrInvalidName        = errors.New("invalid command name")
	ErrAlreadyRegistered  = errors.New("command already registered")
	ErrNotRegistered      = errors.New("command not registered")
	ErrInstanceInUse      = errors.New("AT instance already in use")
	ErrNotDispatched      = errors.New("no command dispatched")
	ErrNotDelegated       = errors.New("instance is not delegated")
	ErrInvalidInputMode   = errors.New("invalid input mode")
	ErrInstanceClosed     = errors.New("AT instance closed")
	ErrClosed             = errors.New("ATP closed")
	ErrMissingExpectedLen = errors.New("M2M write mode needs the expected data length")
)

// Handler receives all events that belong to the commands it is registered for.
type Handler interface {
	Handle(*Instance, Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(*Instance, Event)

func (f HandlerFunc) Handle(instance *Instance, event Event) {
	f(instance, event)
}

// Option configures an ATP.
type Option func(*ATP)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(a *ATP) {
		a.log = logger
	}
}

// WithProfile sets the profile store the instances read their settings from.
func WithProfile(store *profile.Store) Option {
	return func(a *ATP) {
		a.profile = store
	}
}

// WithReleaseTimeout terminates commands with +CME ERROR: 100 if they are not released in time.
// Zero waits forever.
func WithReleaseTimeout(timeout time.Duration) Option {
	return func(a *ATP) {
		a.releaseTimeout = timeout
	}
}

// WithTrace traces all communication of all instances to the given writer.
func WithTrace(tracer io.Writer) Option {
	return func(a *ATP) {
		a.tracer = tracer
	}
}

// ATP is the application's handle to the AT command parser. It holds the command table and all
// active AT instances.
type ATP struct {
	mu        sync.RWMutex
	handlers  map[string]Handler
	instances map[int]*Instance
	closed    bool

	profile        *profile.Store
	releaseTimeout time.Duration
	tracer         io.Writer
	traceMu        sync.Mutex
	log            *zap.Logger
}

// New creates a new ATP. The parameters the parser needs are defined in the profile store if they
// do not exist yet.
func New(opts ...Option) (*ATP, error) {
	result := &ATP{
		handlers:  make(map[string]Handler),
		instances: make(map[int]*Instance),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(result)
	}
	if result.profile == nil {
		result.profile = profile.NewStore(profile.NewMemory(), profile.WithLogger(result.log))
	}
	if err := DefineParams(result.profile); err != nil {
		return nil, err
	}
	return result, nil
}

// Profile returns the profile store of this ATP.
func (a *ATP) Profile() *profile.Store {
	return a.profile
}

// Register the handler for the given command mnemonic, e.g. "+CMGS", "#LOOP", "E", "&W" or "S3".
func (a *ATP) Register(name string, handler Handler) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	name = normalizeName(name)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if _, ok := a.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	a.handlers[name] = handler
	a.log.Debug("command registered", zap.String("command", name))
	return nil
}

// RegisterFunc is a short-cut for Register(name, HandlerFunc(f)).
func (a *ATP) RegisterFunc(name string, f func(*Instance, Event)) error {
	return a.Register(name, HandlerFunc(f))
}

// Unregister removes the handler of the given command. A dispatched command is not affected.
func (a *ATP) Unregister(name string) error {
	name = normalizeName(name)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.handlers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	delete(a.handlers, name)
	a.log.Debug("command unregistered", zap.String("command", name))
	return nil
}

// Commands returns the names of all registered commands in alphabetical order.
func (a *ATP) Commands() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make([]string, 0, len(a.handlers))
	for name := range a.handlers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

func (a *ATP) handler(name string) (Handler, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result, ok := a.handlers[name]
	return result, ok
}

// Serve starts a new AT instance with the given id on the given transport. The instance runs until
// the transport reaches EOF, the context is done, or the instance is closed. The instance starts with
// the Instance scope values of the power-up profile; the Common values are shared with the instances
// that are already running and stay as they are.
func (a *ATP) Serve(ctx context.Context, id int, device io.ReadWriter) (*Instance, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := a.instances[id]; ok {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrInstanceInUse, id)
	}
	instance := newInstance(a, id, device)
	a.instances[id] = instance
	a.mu.Unlock()

	// the power-up profile
	if a.profile.HasSlot(profile.First) {
		if err := a.profile.RestoreInstance(id, profile.First); err != nil {
			a.log.Warn("cannot restore power-up profile", zap.Int("instance", id), zap.Error(err))
		}
	}

	instance.start(ctx)
	a.log.Info("AT instance started", zap.Int("instance", id))
	return instance, nil
}

// Instance returns the active instance with the given id.
func (a *ATP) Instance(id int) (*Instance, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result, ok := a.instances[id]
	return result, ok
}

// Unsolicited sends the given unsolicited result code to all active instances.
func (a *ATP) Unsolicited(msg string) {
	a.mu.RLock()
	instances := make([]*Instance, 0, len(a.instances))
	for _, instance := range a.instances {
		instances = append(instances, instance)
	}
	a.mu.RUnlock()

	for _, instance := range instances {
		if err := instance.MsgOut(msg); err != nil {
			a.log.Debug("cannot send unsolicited result", zap.Int("instance", instance.id), zap.Error(err))
		}
	}
}

func (a *ATP) removeInstance(instance *Instance) {
	a.mu.Lock()
	if current, ok := a.instances[instance.id]; ok && current == instance {
		delete(a.instances, instance.id)
	}
	a.mu.Unlock()
	a.profile.ForgetInstance(instance.id)
	a.log.Info("AT instance stopped", zap.Int("instance", instance.id))
}

// Close stops all instances. The ATP cannot be used afterwards.
func (a *ATP) Close() error {
	a.mu.Lock()
	a.closed = true
	instances := make([]*Instance, 0, len(a.instances))
	for _, instance := range a.instances {
		instances = append(instances, instance)
	}
	a.mu.Unlock()

	for _, instance := range instances {
		instance.Close()
	}
	return nil
}

func (a *ATP) tracef(format string, args ...any) {
	if a.tracer == nil {
		return
	}
	a.traceMu.Lock()
	defer a.traceMu.Unlock()
	fmt.Fprintf(a.tracer, format, args...)
}
