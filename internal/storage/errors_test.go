package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcoot/typeroom/internal/model"
)

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil))
	assert.Same(t, model.ErrRoomNotFound, Wrap(model.ErrRoomNotFound))
	assert.Same(t, model.ErrInvalidTransition, Wrap(model.ErrInvalidTransition))
	assert.ErrorIs(t, Wrap(context.DeadlineExceeded), context.DeadlineExceeded)
	assert.NotErrorIs(t, Wrap(context.Canceled), model.ErrStorage)

	boom := errors.New("connection reset")
	wrapped := Wrap(boom)
	assert.ErrorIs(t, wrapped, model.ErrStorage)
	assert.ErrorIs(t, wrapped, boom)
}
