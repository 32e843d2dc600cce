//go:build linux

package serial

import (
	"strings"

	"github.com/hedhyw/Go-Serial-Detector/pkg/v1/serialdet"
)

// FindPortName returns the path of the first serial port whose description contains the given text.
func FindPortName(description string) (string, error) {
	devices, err := serialdet.List()
	if err != nil {
		return "", err
	}

	wanted := strings.ToLower(description)
	for _, device := range devices {
		if strings.Contains(strings.ToLower(device.Description()), wanted) {
			return device.Path(), nil
		}
	}

	return "", ErrNoPortFound
}
