package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcoot/typeroom/internal/model"
)

// Wrap tags unexpected backend failures with model.ErrStorage.
// Domain sentinels and context errors pass through untouched.
func Wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrRoomNotFound),
		errors.Is(err, model.ErrRoomExists),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrStorage):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
}
