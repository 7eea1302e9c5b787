//go:build !cgo

package hal

import "errors"

// RunWindow needs cgo for the ebiten backend.
func RunWindow(_ func(HAL) func() error, _ HostConfig) error {
	return errors.New("window mode requires cgo (build with CGO_ENABLED=1)")
}
