package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RuntimeError
		want string
	}{
		{
			name: "with node",
			err:  &RuntimeError{Code: ErrCodeStaleHandle, Message: "node was unregistered", Node: "/a"},
			want: "STALE_HANDLE: node was unregistered (node=/a)",
		},
		{
			name: "with name",
			err:  &RuntimeError{Code: ErrCodeInvalidResolution, Message: "too big", Name: "/main"},
			want: "INVALID_RESOLUTION: too big (name=/main)",
		},
		{
			name: "bare",
			err:  &RuntimeError{Code: ErrCodeUnknownResolution, Message: "no static resolution"},
			want: "UNKNOWN_RESOLUTION: no static resolution",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestRuntimeError_Helpers(t *testing.T) {
	stale := fmt.Errorf("wrapped: %w", &RuntimeError{Code: ErrCodeStaleHandle})
	bad := fmt.Errorf("wrapped: %w", &RuntimeError{Code: ErrCodeInvalidResolution})

	assert.True(t, IsStaleHandle(stale))
	assert.False(t, IsStaleHandle(bad))
	assert.True(t, IsInvalidResolution(bad))
	assert.False(t, IsInvalidResolution(stale))
	assert.False(t, IsInvalidResolution(errors.New("other")))
}
