package serial

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenMissingPort(t *testing.T) {
	port := Port{PortName: filepath.Join(t.TempDir(), "ttyMissing")}

	device, err := Open(port)

	assert.Error(t, err)
	assert.Nil(t, device)
}

func TestFindPortNameWithoutMatch(t *testing.T) {
	_, err := FindPortName("no device has this description 0815")

	assert.Error(t, err)
}
