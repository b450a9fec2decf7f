package config

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned whenever a product type, band or calibration
// is not present in the relevant configuration table.
var ErrInvalidInput = errors.New("invalid configuration/input combination")

func InputError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
