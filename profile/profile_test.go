package profile

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	result := NewStore(backend)
	require.NoError(t, result.Define("E", "1", Instance, WithRange(0, 1)))
	require.NoError(t, result.Define("S12", "50", Instance, WithRange(0, 255)))
	require.NoError(t, result.Define("+CMEE", "0", Common, WithRange(0, 2)))
	require.NoError(t, result.Define("+CSCS", "IRA", Instance, WithValues("IRA", "UCS2", "HEX")))
	return result
}

func TestDefine(t *testing.T) {
	store := NewStore(nil)

	assert.NoError(t, store.Define("e", "1", Instance))
	assert.ErrorIs(t, store.Define("E", "0", Instance), ErrAlreadyDefined)
	assert.ErrorIs(t, store.Define("", "0", Instance), ErrInvalidValue)
	assert.ErrorIs(t, store.Define("V", "2", Instance, WithRange(0, 1)), ErrInvalidValue)
	assert.True(t, store.Defined("E"))
	assert.False(t, store.Defined("V"))

	definition, err := store.Definition("E")
	require.NoError(t, err)
	assert.Equal(t, "E", definition.Name)
	assert.Equal(t, Instance, definition.Scope)
}

func TestGetSet(t *testing.T) {
	tt := []struct {
		desc     string
		name     string
		value    string
		expected string
		invalid  bool
	}{
		{"default", "E", "", "1", false},
		{"in range", "E", "0", "0", false},
		{"out of range", "E", "2", "1", true},
		{"not a number", "S12", "abc", "50", true},
		{"number is canonicalized", "S12", " 007 ", "7", false},
		{"value list", "+CSCS", "ucs2", "UCS2", false},
		{"not in value list", "+CSCS", "GSM", "IRA", true},
		{"lower case name", "+cmee", "2", "2", false},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			store := newTestStore(t, nil)

			if tc.value != "" {
				err := store.Set(0, tc.name, tc.value)
				if tc.invalid {
					assert.ErrorIs(t, err, ErrInvalidValue)
				} else {
					assert.NoError(t, err)
				}
			}
			actual, err := store.Get(0, tc.name)

			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestUnknownParam(t *testing.T) {
	store := newTestStore(t, nil)

	_, err := store.Get(0, "X")
	assert.ErrorIs(t, err, ErrUnknownParam)
	assert.ErrorIs(t, store.Set(0, "X", "1"), ErrUnknownParam)
	_, err = store.GetInt(0, "X")
	assert.ErrorIs(t, err, ErrUnknownParam)
}

func TestScope(t *testing.T) {
	store := newTestStore(t, nil)

	require.NoError(t, store.SetInt(0, "E", 0))
	require.NoError(t, store.SetInt(0, "+CMEE", 2))

	e0, _ := store.GetInt(0, "E")
	e1, _ := store.GetInt(1, "E")
	cmee1, _ := store.GetInt(1, "+CMEE")
	assert.Equal(t, 0, e0)
	assert.Equal(t, 1, e1, "instance parameters are per instance")
	assert.Equal(t, 2, cmee1, "common parameters are shared")

	store.ForgetInstance(0)
	e0, _ = store.GetInt(0, "E")
	assert.Equal(t, 1, e0)
}

func TestReset(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, store.SetInt(0, "E", 0))
	require.NoError(t, store.SetInt(1, "E", 0))
	require.NoError(t, store.SetInt(0, "+CMEE", 1))

	store.Reset(0)

	e0, _ := store.GetInt(0, "E")
	e1, _ := store.GetInt(1, "E")
	cmee, _ := store.GetInt(1, "+CMEE")
	assert.Equal(t, 1, e0)
	assert.Equal(t, 0, e1)
	assert.Equal(t, 0, cmee)
}

func TestList(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, store.Set(3, "+CSCS", "HEX"))

	actual := store.List(3)

	assert.Equal(t, []Value{
		{Name: "+CMEE", Value: "0", Scope: Common},
		{Name: "+CSCS", Value: "HEX", Scope: Instance},
		{Name: "E", Value: "1", Scope: Instance},
		{Name: "S12", Value: "50", Scope: Instance},
	}, actual)
}

func TestSaveRestore(t *testing.T) {
	backend := NewMemory()
	store := newTestStore(t, backend)
	require.NoError(t, store.SetInt(0, "E", 0))
	require.NoError(t, store.SetInt(0, "+CMEE", 2))

	require.NoError(t, store.Save(0, Second))
	assert.True(t, store.HasSlot(Second))
	assert.False(t, store.HasSlot(First))

	require.NoError(t, store.Restore(1, Second))
	e1, _ := store.GetInt(1, "E")
	assert.Equal(t, 0, e1)

	reloaded := newTestStore(t, backend)
	require.NoError(t, reloaded.Load())
	assert.True(t, reloaded.HasSlot(Second))
	require.NoError(t, reloaded.Restore(5, Second))
	e5, _ := reloaded.GetInt(5, "E")
	cmee, _ := reloaded.GetInt(5, "+CMEE")
	assert.Equal(t, 0, e5)
	assert.Equal(t, 2, cmee)
}

func TestRestore_EmptySlots(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, store.SetInt(0, "E", 0))
	require.NoError(t, store.SetInt(0, "+CMEE", 1))

	assert.ErrorIs(t, store.Restore(0, First), ErrEmptySlot)
	e, _ := store.GetInt(0, "E")
	assert.Equal(t, 0, e, "a failed restore keeps the values")

	assert.NoError(t, store.Restore(0, BaseFirst))
	e, _ = store.GetInt(0, "E")
	cmee, _ := store.GetInt(0, "+CMEE")
	assert.Equal(t, 1, e, "an empty base slot restores the defaults")
	assert.Equal(t, 0, cmee)

	assert.ErrorIs(t, store.Restore(0, Index(9)), ErrInvalidIndex)
	assert.ErrorIs(t, store.Save(0, Index(9)), ErrInvalidIndex)
}

func TestRestoreInstanceAndCommon(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, store.SetInt(0, "E", 0))
	require.NoError(t, store.SetInt(0, "+CMEE", 1))
	require.NoError(t, store.Save(0, First))
	require.NoError(t, store.SetInt(0, "+CMEE", 2))
	require.NoError(t, store.SetInt(1, "E", 1))

	require.NoError(t, store.RestoreInstance(1, First))
	e, _ := store.GetInt(1, "E")
	cmee, _ := store.GetInt(1, "+CMEE")
	assert.Equal(t, 0, e)
	assert.Equal(t, 2, cmee, "common values stay untouched")

	require.NoError(t, store.RestoreCommon(First))
	cmee, _ = store.GetInt(0, "+CMEE")
	assert.Equal(t, 1, cmee)

	assert.ErrorIs(t, store.RestoreInstance(1, Second), ErrEmptySlot)
	assert.ErrorIs(t, store.RestoreCommon(Second), ErrEmptySlot)
	assert.ErrorIs(t, store.RestoreCommon(Index(9)), ErrInvalidIndex)
}

type failingBackend struct {
	Memory
}

func (b *failingBackend) Save(*Snapshot) error {
	return errors.New("disk full")
}

func TestSave_BackendFails(t *testing.T) {
	store := newTestStore(t, &failingBackend{})

	err := store.Save(0, First)

	assert.Error(t, err)
	assert.False(t, store.HasSlot(First))
}

func TestRestore_IgnoresUnknownAndInvalidValues(t *testing.T) {
	backend := NewMemory()
	require.NoError(t, backend.Save(&Snapshot{
		Version: SnapshotVersion,
		Slots: map[string]Slot{
			"first": {
				Common:   map[string]string{"+CMEE": "7", "X": "1"},
				Instance: map[string]string{"E": "0", "+CMEE": "1"},
			},
			"third": {},
		},
	}))
	store := newTestStore(t, backend)
	require.NoError(t, store.Load())

	require.NoError(t, store.Restore(0, First))

	e, _ := store.GetInt(0, "E")
	cmee, _ := store.GetInt(0, "+CMEE")
	assert.Equal(t, 0, e)
	assert.Equal(t, 0, cmee)
}

func TestFileBackends(t *testing.T) {
	tt := []struct {
		format string
		file   string
	}{
		{"toml", "profiles.toml"},
		{"cbor", "profiles.cbor"},
	}
	for _, tc := range tt {
		t.Run(tc.format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nvm", tc.file)
			backend, err := NewFile(tc.format, path)
			require.NoError(t, err)

			snapshot, err := backend.Load()
			require.NoError(t, err)
			assert.Nil(t, snapshot, "missing file")

			store := newTestStore(t, backend)
			require.NoError(t, store.Set(0, "+CSCS", "UCS2"))
			require.NoError(t, store.SetInt(0, "S12", 20))
			require.NoError(t, store.Save(0, First))
			require.NoError(t, store.Save(0, BaseSecond))

			snapshot, err = backend.Load()
			require.NoError(t, err)
			require.NotNil(t, snapshot)
			assert.Equal(t, SnapshotVersion, snapshot.Version)
			assert.False(t, snapshot.SavedAt.IsZero())
			assert.Len(t, snapshot.Slots, 2)
			assert.Equal(t, "UCS2", snapshot.Slots["first"].Instance["+CSCS"])
			assert.Equal(t, "0", snapshot.Slots["base_second"].Common["+CMEE"])

			reloaded := newTestStore(t, backend)
			require.NoError(t, reloaded.Load())
			require.NoError(t, reloaded.Restore(2, First))
			s12, _ := reloaded.GetInt(2, "S12")
			assert.Equal(t, 20, s12)
		})
	}
}

func TestNewFile_UnknownFormat(t *testing.T) {
	_, err := NewFile("yaml", "profiles.yaml")
	assert.Error(t, err)
}

func TestIndex(t *testing.T) {
	assert.Equal(t, "base_first", BaseFirst.String())
	assert.True(t, BaseSecond.Base())
	assert.False(t, Second.Base())
	assert.Equal(t, "unknown", Index(9).String())
}
