package ai

import (
	"context"
	"errors"

	"chatbuddy/pkg/domain"
)

// ErrEmptyCompletion is returned when the provider answers without usable content.
var ErrEmptyCompletion = errors.New("empty response from completion provider")

// Completer maps an ordered transcript to a single reply turn.
// Implementations must not retain or mutate the passed slice.
type Completer interface {
	Complete(ctx context.Context, history []domain.Message) (domain.Message, error)
}
