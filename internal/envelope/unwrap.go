// Package envelope unwraps transport wrapper layers and extracts the
// normalized content of inbound events.
package envelope

import (
	"errors"

	"salonbot/internal/domain"
)

// maxWrapperDepth bounds the unwrap loop. Real messages nest two or three
// levels at most; anything deeper is treated as malformed rather than
// followed indefinitely.
const maxWrapperDepth = 10

// ErrMalformed is returned when wrapper nesting exceeds maxWrapperDepth,
// which only happens for self-referential or corrupted structures.
var ErrMalformed = errors.New("envelope: wrapper nesting exceeds depth limit")

// Unwrap strips ephemeral and view-once layers until it reaches a payload
// node. It returns nil for nil input or for a wrapper with no inner
// message, and the envelope unchanged once no wrapper kind matches.
func Unwrap(env *domain.Envelope) (*domain.Envelope, error) {
	if env == nil {
		return nil, nil
	}
	for depth := 0; depth < maxWrapperDepth; depth++ {
		if !env.Kind.IsWrapper() {
			return env, nil
		}
		if env.Inner == nil {
			return nil, nil
		}
		env = env.Inner
	}
	return nil, ErrMalformed
}
