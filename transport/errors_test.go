package transport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/duh-rpc/duh-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrInvalid(t *testing.T) {
	in := NewInvalidOption("invalid key")
	assert.Equal(t, "invalid key", in.Error())
	err := fmt.Errorf("wrap: %w", in)
	assert.Equal(t, "wrap: invalid key", err.Error())

	var d duh.Error
	require.True(t, errors.As(err, &d))
	assert.Equal(t, "invalid key", d.Error())
	assert.Equal(t, "invalid key", d.Message())
}

func TestErrorCodes(t *testing.T) {
	for _, test := range []struct {
		name string
		err  duh.Error
		code int
	}{
		{name: "InvalidOption", err: NewInvalidOption("bad"), code: duh.CodeBadRequest},
		{name: "RequestFailed", err: NewRequestFailed("failed"), code: duh.CodeRequestFailed},
		{name: "RetryRequest", err: NewRetryRequest("retry"), code: duh.CodeRetryRequest},
		{name: "Internal", err: NewInternal("oops"), code: duh.CodeInternalError},
	} {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.code, test.err.Code())
			assert.True(t, errors.Is(fmt.Errorf("wrap: %w", test.err), test.err))
		})
	}
}

func TestIsQueueEmpty(t *testing.T) {
	assert.True(t, IsQueueEmpty(NewRequestFailed("%s; no partition files", MsgQueueEmpty)))
	assert.True(t, IsQueueEmpty(fmt.Errorf("wrap: %w", NewRequestFailed(MsgQueueEmpty))))
	assert.False(t, IsQueueEmpty(NewRequestFailed("queue is shutting down")))
	assert.False(t, IsQueueEmpty(NewRetryRequest(MsgQueueEmpty)))
	assert.False(t, IsQueueEmpty(errors.New(MsgQueueEmpty)))
}
