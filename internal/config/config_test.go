package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
debug = true
release_timeout = "5s"

[serial]
port = "/dev/ttyUSB1"
baud = 9600

[profile]
path = "/tmp/profile.cbor"
format = "cbor"

[sms]
own_number = "+49100200"

[identification]
model = "LE910C4"
`)

	actual, err := Load(path, false)

	require.NoError(t, err)
	assert.True(t, actual.Debug)
	assert.Equal(t, 5*time.Second, actual.ReleaseTimeout.Value())
	assert.Equal(t, "/dev/ttyUSB1", actual.Serial.Port)
	assert.Equal(t, uint(9600), actual.Serial.Baud)
	assert.Equal(t, "cbor", actual.Profile.Format)
	assert.Equal(t, "+49100200", actual.SMS.OwnNumber)
	assert.Equal(t, 50, actual.SMS.Capacity, "defaults are kept")
	assert.Equal(t, DefaultListen, actual.Listen.Address)
	assert.Equal(t, "LE910C4", actual.Identification.Model)
	assert.Equal(t, "Telit", actual.Identification.Manufacturer)
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")

	_, err := Load(path, false)
	assert.Error(t, err)

	actual, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, Default(), actual)
}

func TestLoadInvalid(t *testing.T) {
	tt := []struct {
		desc    string
		content string
	}{
		{"syntax", `debug = `},
		{"duration", `release_timeout = "soon"`},
		{"no instances", "[listen]\naddress = \"\""},
		{"profile format", "[profile]\nformat = \"yaml\""},
		{"negative capacity", "[sms]\ncapacity = -1"},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content), false)
			assert.Error(t, err)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	expected := Default()
	expected.Serial.Detect = "telit"
	expected.ReleaseTimeout = Duration(time.Minute)

	require.NoError(t, expected.Save(path))
	actual, err := Load(path, false)

	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func TestCLIFlags(t *testing.T) {
	flags, err := ParseCLIFlags([]string{"-debug", "-port", "/dev/ttyACM0", "-listen", ":2424"})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigPath, flags.ConfigPath)

	actual := Default()
	flags.Apply(actual)

	assert.True(t, actual.Debug)
	assert.Equal(t, "/dev/ttyACM0", actual.Serial.Port)
	assert.True(t, actual.Serial.Enabled())
	assert.Equal(t, ":2424", actual.Listen.Address)
	assert.Empty(t, actual.Trace)

	_, err = ParseCLIFlags([]string{"-unknown"})
	assert.Error(t, err)
}
