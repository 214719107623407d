package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Generate returns prefix-<nanoid>, e.g. "msg-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	n, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + n, nil
}

// Message returns a new chat message id. Entropy failure is not recoverable.
func Message() string {
	v, err := Generate("msg")
	if err != nil {
		panic(err)
	}
	return v
}
