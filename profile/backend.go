package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pelletier/go-toml/v2"
)

// SnapshotVersion is the current version of the profile file format.
const SnapshotVersion = 1

// Snapshot is the persisted form of all profile slots.
type Snapshot struct {
	Version int             `toml:"version" cbor:"1,keyasint"`
	SavedAt time.Time       `toml:"saved_at" cbor:"2,keyasint"`
	Slots   map[string]Slot `toml:"slots" cbor:"3,keyasint"`
}

// Slot holds the stored values of one profile.
type Slot struct {
	Common   map[string]string `toml:"common" cbor:"1,keyasint"`
	Instance map[string]string `toml:"instance" cbor:"2,keyasint"`
}

func (s Slot) clone() Slot {
	result := Slot{
		Common:   make(map[string]string, len(s.Common)),
		Instance: make(map[string]string, len(s.Instance)),
	}
	for k, v := range s.Common {
		result.Common[k] = v
	}
	for k, v := range s.Instance {
		result.Instance[k] = v
	}
	return result
}

// Backend persists the profile slots.
type Backend interface {
	// Load returns nil, nil if nothing was stored yet.
	Load() (*Snapshot, error)
	Save(*Snapshot) error
}

// Memory keeps the snapshot in memory only.
type Memory struct {
	mu       sync.Mutex
	snapshot *Snapshot
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil, nil
	}
	return m.snapshot.clone(), nil
}

func (m *Memory) Save(snapshot *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snapshot.clone()
	return nil
}

func (s *Snapshot) clone() *Snapshot {
	result := &Snapshot{
		Version: s.Version,
		SavedAt: s.SavedAt,
		Slots:   make(map[string]Slot, len(s.Slots)),
	}
	for k, v := range s.Slots {
		result.Slots[k] = v.clone()
	}
	return result
}

// TOMLFile stores the snapshot as human readable TOML file.
type TOMLFile struct {
	mu   sync.Mutex
	path string
}

func NewTOMLFile(path string) *TOMLFile {
	return &TOMLFile{path: path}
}

func (f *TOMLFile) Load() (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result := &Snapshot{}
	if err := toml.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", f.path, err)
	}
	return result, nil
}

func (f *TOMLFile) Save(snapshot *Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot = prepare(snapshot)
	data, err := toml.Marshal(snapshot)
	if err != nil {
		return err
	}
	return writeFile(f.path, data)
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	cborEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create profile CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	cborDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create profile CBOR decoder mode: %v", err))
	}
}

// CBORFile stores the snapshot in a compact binary file, like a non-volatile memory image.
type CBORFile struct {
	mu   sync.Mutex
	path string
}

func NewCBORFile(path string) *CBORFile {
	return &CBORFile{path: path}
}

func (f *CBORFile) Load() (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result := &Snapshot{}
	if err := cborDecMode.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("cannot decode %s: %w", f.path, err)
	}
	return result, nil
}

func (f *CBORFile) Save(snapshot *Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot = prepare(snapshot)
	data, err := cborEncMode.Marshal(snapshot)
	if err != nil {
		return err
	}
	return writeFile(f.path, data)
}

// NewFile returns the file backend for the given format, "toml" or "cbor".
func NewFile(format string, path string) (Backend, error) {
	switch format {
	case "", "toml":
		return NewTOMLFile(path), nil
	case "cbor":
		return NewCBORFile(path), nil
	default:
		return nil, fmt.Errorf("unknown profile file format %q", format)
	}
}

func prepare(snapshot *Snapshot) *Snapshot {
	result := snapshot.clone()
	result.Version = SnapshotVersion
	if result.SavedAt.IsZero() {
		result.SavedAt = time.Now()
	}
	return result
}

func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
