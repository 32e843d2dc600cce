// Package profile keeps the parameters of the AT command parser: a small key value store
// scoped by AT instance that can be saved to and restored from a fixed set of profile slots.
package profile

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Profile errors
var (
	ErrUnknownParam   = errors.New("unknown profile parameter")
	ErrAlreadyDefined = errors.New("profile parameter already defined")
	ErrInvalidValue   = errors.New("invalid profile parameter value")
	ErrEmptySlot      = errors.New("profile slot is empty")
	ErrInvalidIndex   = errors.New("invalid profile index")
)

// Scope tells if a parameter is shared between all AT instances or kept per instance.
type Scope byte

// All scopes
const (
	// Common parameters have one value for all AT instances.
	Common Scope = iota
	// Instance parameters have an own value for each AT instance.
	Instance
)

func (s Scope) String() string {
	switch s {
	case Common:
		return "COMMON"
	case Instance:
		return "INSTANCE"
	default:
		return "UNKNOWN"
	}
}

// Index selects one of the profile slots.
type Index byte

// All profile slots. The base slots hold the factory image of the user slots.
const (
	First Index = iota
	Second
	BaseFirst
	BaseSecond
)

// IndexesByName maps all profile slots by their string representation
var IndexesByName = map[string]Index{
	"first":       First,
	"second":      Second,
	"base_first":  BaseFirst,
	"base_second": BaseSecond,
}

func (i Index) String() string {
	for k, v := range IndexesByName {
		if v == i {
			return k
		}
	}
	return "unknown"
}

// Base reports if the index selects a base slot.
func (i Index) Base() bool {
	return i == BaseFirst || i == BaseSecond
}

func (i Index) valid() bool {
	return i <= BaseSecond
}

// Value is the current value of a parameter.
type Value struct {
	Name  string
	Value string
	Scope Scope
}

// Definition describes a profile parameter.
type Definition struct {
	Name     string
	Default  string
	Scope    Scope
	validate func(string) (string, error)
}

// Option configures a parameter definition.
type Option func(*Definition)

// WithRange accepts only integer values within [min, max].
func WithRange(min, max int) Option {
	return func(d *Definition) {
		d.validate = func(value string) (string, error) {
			i, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return "", fmt.Errorf("%w: %s is not a number", ErrInvalidValue, value)
			}
			if i < min || i > max {
				return "", fmt.Errorf("%w: %d not in %d-%d", ErrInvalidValue, i, min, max)
			}
			return strconv.Itoa(i), nil
		}
	}
}

// WithValues accepts only the given values, compared case insensitive.
func WithValues(values ...string) Option {
	return func(d *Definition) {
		d.validate = func(value string) (string, error) {
			for _, v := range values {
				if strings.EqualFold(v, strings.TrimSpace(value)) {
					return v, nil
				}
			}
			return "", fmt.Errorf("%w: %s not in %v", ErrInvalidValue, value, values)
		}
	}
}

// WithValidator uses a custom validation function that returns the canonical form of the value.
func WithValidator(validate func(string) (string, error)) Option {
	return func(d *Definition) {
		d.validate = validate
	}
}

func (d *Definition) check(value string) (string, error) {
	if d.validate == nil {
		return value, nil
	}
	return d.validate(value)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger of the store.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.log = logger
	}
}

// Store is the profile parameter store shared by all AT instances.
type Store struct {
	mu sync.RWMutex

	definitions map[string]*Definition
	common      map[string]string
	instances   map[int]map[string]string
	slots       map[Index]Slot

	backend Backend
	log     *zap.Logger
}

// NewStore creates a store that persists its slots through the given backend.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	if backend == nil {
		backend = NewMemory()
	}
	result := &Store{
		definitions: make(map[string]*Definition),
		common:      make(map[string]string),
		instances:   make(map[int]map[string]string),
		slots:       make(map[Index]Slot),
		backend:     backend,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(result)
	}
	return result
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Define adds a parameter with its default value and scope.
func (s *Store) Define(name string, defaultValue string, scope Scope, opts ...Option) error {
	definition := &Definition{
		Name:    normalize(name),
		Default: defaultValue,
		Scope:   scope,
	}
	for _, opt := range opts {
		opt(definition)
	}
	if definition.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidValue)
	}
	defaultValue, err := definition.check(defaultValue)
	if err != nil {
		return fmt.Errorf("default of %s: %w", definition.Name, err)
	}
	definition.Default = defaultValue

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.definitions[definition.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyDefined, definition.Name)
	}
	s.definitions[definition.Name] = definition
	return nil
}

// Defined reports if a parameter with the given name exists.
func (s *Store) Defined(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.definitions[normalize(name)]
	return ok
}

// Definition returns the definition of the given parameter.
func (s *Store) Definition(name string) (Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	definition, ok := s.definitions[normalize(name)]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	return *definition, nil
}

// Get returns the current value of the parameter for the given instance.
func (s *Store) Get(instance int, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	definition, ok := s.definitions[normalize(name)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	return s.get(instance, definition), nil
}

func (s *Store) get(instance int, definition *Definition) string {
	var values map[string]string
	if definition.Scope == Common {
		values = s.common
	} else {
		values = s.instances[instance]
	}
	if value, ok := values[definition.Name]; ok {
		return value
	}
	return definition.Default
}

// GetInt returns the current value of the parameter as integer.
func (s *Store) GetInt(instance int, name string) (int, error) {
	value, err := s.Get(instance, name)
	if err != nil {
		return 0, err
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s is not a number: %w", name, err)
	}
	return result, nil
}

// Set changes the value of the parameter for the given instance.
func (s *Store) Set(instance int, name string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	definition, ok := s.definitions[normalize(name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	value, err := definition.check(value)
	if err != nil {
		return fmt.Errorf("%s: %w", definition.Name, err)
	}
	s.set(instance, definition, value)
	return nil
}

// SetInt changes the value of the parameter to the given integer.
func (s *Store) SetInt(instance int, name string, value int) error {
	return s.Set(instance, name, strconv.Itoa(value))
}

func (s *Store) set(instance int, definition *Definition, value string) {
	if definition.Scope == Common {
		s.common[definition.Name] = value
		return
	}
	values, ok := s.instances[instance]
	if !ok {
		values = make(map[string]string)
		s.instances[instance] = values
	}
	values[definition.Name] = value
}

// List returns all parameter values of the given instance, ordered by name.
func (s *Store) List(instance int) []Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Value, 0, len(s.definitions))
	for _, definition := range s.definitions {
		result = append(result, Value{
			Name:  definition.Name,
			Value: s.get(instance, definition),
			Scope: definition.Scope,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Reset sets all instance parameters of the given instance and all common parameters to their defaults.
func (s *Store) Reset(instance int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.instances, instance)
	s.common = make(map[string]string)
}

// ForgetInstance drops the values of an instance that does not exist anymore.
func (s *Store) ForgetInstance(instance int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.instances, instance)
}

// Load reads the profile slots from the backend.
func (s *Store) Load() error {
	snapshot, err := s.backend.Load()
	if err != nil {
		return fmt.Errorf("cannot load profiles: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = make(map[Index]Slot)
	if snapshot == nil {
		return nil
	}
	for name, slot := range snapshot.Slots {
		index, ok := IndexesByName[name]
		if !ok {
			s.log.Warn("ignoring unknown profile slot", zap.String("slot", name))
			continue
		}
		s.slots[index] = slot.clone()
	}
	s.log.Debug("profiles loaded", zap.Int("slots", len(s.slots)))
	return nil
}

// HasSlot reports if the given slot holds a stored profile.
func (s *Store) HasSlot(index Index) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.slots[index]
	return ok
}

// Save writes the current values of the given instance into the slot and persists all slots.
func (s *Store) Save(instance int, index Index) error {
	if !index.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}

	s.mu.Lock()
	slot := Slot{
		Common:   make(map[string]string),
		Instance: make(map[string]string),
	}
	for _, definition := range s.definitions {
		value := s.get(instance, definition)
		if definition.Scope == Common {
			slot.Common[definition.Name] = value
		} else {
			slot.Instance[definition.Name] = value
		}
	}
	previous, hadPrevious := s.slots[index]
	s.slots[index] = slot
	snapshot := s.snapshot()
	s.mu.Unlock()

	if err := s.backend.Save(snapshot); err != nil {
		s.mu.Lock()
		if hadPrevious {
			s.slots[index] = previous
		} else {
			delete(s.slots, index)
		}
		s.mu.Unlock()
		return fmt.Errorf("cannot save profile %s: %w", index, err)
	}
	s.log.Debug("profile saved", zap.Int("instance", instance), zap.Stringer("slot", index))
	return nil
}

// Restore loads the values of the given slot into the instance. An empty base slot restores the defaults.
// Common values are restored as well and therefore affect all instances.
func (s *Store) Restore(instance int, index Index) error {
	return s.restore(instance, index, Common, Instance)
}

// RestoreInstance loads only the Instance scope values of the given slot into the instance. The
// Common values shared with other instances stay untouched.
func (s *Store) RestoreInstance(instance int, index Index) error {
	return s.restore(instance, index, Instance)
}

// RestoreCommon loads only the Common scope values of the given slot.
func (s *Store) RestoreCommon(index Index) error {
	return s.restore(-1, index, Common)
}

func (s *Store) restore(instance int, index Index, scopes ...Scope) error {
	if !index.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[index]
	if !ok && !index.Base() {
		return fmt.Errorf("%w: %s", ErrEmptySlot, index)
	}

	for _, scope := range scopes {
		var values map[string]string
		switch scope {
		case Common:
			s.common = make(map[string]string)
			values = slot.Common
		case Instance:
			delete(s.instances, instance)
			values = slot.Instance
		}
		for name, value := range values {
			definition, ok := s.definitions[name]
			if !ok || definition.Scope != scope {
				s.log.Warn("ignoring stored profile parameter", zap.String("name", name), zap.Stringer("slot", index))
				continue
			}
			checked, err := definition.check(value)
			if err != nil {
				s.log.Warn("ignoring invalid stored profile value", zap.String("name", name), zap.Error(err))
				continue
			}
			s.set(instance, definition, checked)
		}
	}
	return nil
}

func (s *Store) snapshot() *Snapshot {
	result := &Snapshot{
		Version: SnapshotVersion,
		Slots:   make(map[string]Slot, len(s.slots)),
	}
	for index, slot := range s.slots {
		result.Slots[index.String()] = slot.clone()
	}
	return result
}
