package common

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatusError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"invalid mode", fmt.Errorf("parse: %w", ErrInvalidMode), codes.InvalidArgument},
		{"duplicate topic", NewAppError("TOPIC", "basic_info", ErrDuplicateTopic), codes.InvalidArgument},
		{"missing session", fmt.Errorf("get: %w", ErrSessionNotFound), codes.NotFound},
		{"other", fmt.Errorf("boom"), codes.Internal},
		{"already status", status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := status.FromError(ToStatusError(tt.err))
			assert.True(t, ok)
			assert.Equal(t, tt.code, st.Code())
		})
	}
	assert.NoError(t, ToStatusError(nil))
}

func TestAppErrorUnwrap(t *testing.T) {
	err := NewAppError("LOOKUP", "topic missing", ErrTopicNotFound)
	assert.ErrorIs(t, err, ErrTopicNotFound)
	assert.Equal(t, "LOOKUP: topic missing: topic not found", err.Error())
	assert.Nil(t, WrapError(nil, "noop"))
}
