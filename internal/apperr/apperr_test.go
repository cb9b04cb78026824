package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("accept failed: %w", InvalidState("transaction is %s", "COMPLETED"))

	assert.Equal(t, KindInvalidState, KindOf(err))
	assert.True(t, Is(err, KindInvalidState))
	assert.False(t, Is(err, KindNotFound))
}

func TestWrapForeignErrorBecomesInternal(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause)

	assert.Equal(t, KindInternal, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Wrap(nil))
}

func TestWrapKeepsKind(t *testing.T) {
	orig := NotFound("transaction", "tx-1")
	err := Wrap(fmt.Errorf("lookup: %w", orig))

	assert.Same(t, orig, err)
	assert.Equal(t, "transaction not found: tx-1", err.Error())
}

func TestIsNil(t *testing.T) {
	assert.False(t, Is(nil, KindInternal))
}
