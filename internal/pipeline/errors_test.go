package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", NewStageError(KindTransientNetwork, base), true},
		{"permanent network", NewStageError(KindPermanentNetwork, base), true},
		{"parse error", NewStageError(KindParseError, base), false},
		{"invalid task", NewStageError(KindInvalidTask, base), false},
		{"dependency down", NewStageError(KindDependencyDown, base), false},
		{"resource exhaustion", NewStageError(KindResourceExhaustion, base), true},
		{"untagged", base, true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				assert.False(t, Retryable(tt.err))
				return
			}
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestStageError_Unwrap(t *testing.T) {
	base := errors.New("timeout")
	err := NewStageError(KindTransientNetwork, base)
	assert.ErrorIs(t, err, base)
}

func TestNewStageError_Nil(t *testing.T) {
	assert.Nil(t, NewStageError(KindParseError, nil))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInvalidTask, KindOf(NewStageError(KindInvalidTask, errors.New("x"))))
	assert.Equal(t, KindTransientNetwork, KindOf(errors.New("untagged")))
}
