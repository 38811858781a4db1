package id

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// ErrInvalidSize is returned when a random value of zero or negative size is
// requested.
var ErrInvalidSize = errors.New("invalid size")

// New generates a UUID based ID with an optional prefix.
func New(optionalPrefix string) (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("unable to generate id: %w", err)
	}
	switch {
	case optionalPrefix != "":
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	default:
		return id, nil
	}
}

// RandomBytes returns size bytes read from a cryptographically secure source.
func RandomBytes(size int) ([]byte, error) {
	const op = "id.RandomBytes"
	if size <= 0 {
		return nil, fmt.Errorf("%s: size %d: %w", op, size, ErrInvalidSize)
	}
	b, err := uuid.GenerateRandomBytes(size)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read random bytes: %w", op, err)
	}
	return b, nil
}
