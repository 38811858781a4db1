package oidc

import (
	"fmt"

	"github.com/hashicorp/cap-cognito/sdk/id"
)

// NewId generates a ID with an optional prefix. The ID generated is suitable
// for a session id.
func NewId(optionalPrefix string) (string, error) {
	const op = "oidc.NewId"
	id, err := id.New(optionalPrefix)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, err)
	}
	return id, nil
}
