//go:build !linux

package serial

// FindPortName is only supported on linux.
func FindPortName(description string) (string, error) {
	return "", ErrNoPortFound
}
