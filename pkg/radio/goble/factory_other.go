//go:build !linux && !darwin

package goble

import (
	"errors"

	ble "github.com/go-ble/ble"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
var DeviceFactory = func() (ble.Device, error) {
	return nil, errors.New("goble: no BLE device support on this platform")
}
