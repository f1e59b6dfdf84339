package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/devrev/pairdb/contextmap/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestIndexError_Is(t *testing.T) {
	err := errors.NonMonotonicContext(int64(5), int64(3))

	assert.True(t, stderrors.Is(err, errors.ErrNonMonotonicContext))
	assert.False(t, stderrors.Is(err, errors.ErrValueAlreadyOwned))

	wrapped := fmt.Errorf("step 4: %w", errors.ValueAlreadyOwned("v1", "k1"))
	assert.True(t, stderrors.Is(wrapped, errors.ErrValueAlreadyOwned))
	assert.Equal(t, errors.ErrCodeValueAlreadyOwned, errors.GetCode(wrapped))
	assert.True(t, errors.IsIndexError(wrapped))
}

func TestIndexError_Message(t *testing.T) {
	err := errors.NonMonotonicContext(int64(5), int64(3))
	assert.Equal(t, "context 3 is not after latest context 5", err.Error())
	assert.Equal(t, int64(5), err.Details["latest"])
	assert.Equal(t, int64(3), err.Details["attempted"])

	cause := stderrors.New("disk on fire")
	internal := errors.InternalError("replay failed", cause)
	assert.Equal(t, "replay failed: disk on fire", internal.Error())
	assert.ErrorIs(t, internal, cause)
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, errors.ErrCodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.ErrCodeInternal, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.ErrCodeKeyTooLarge, errors.GetCode(errors.KeyTooLarge(10, 5)))
	assert.False(t, errors.IsIndexError(stderrors.New("plain")))
}

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "non_monotonic_context", errors.ErrCodeNonMonotonicContext.String())
	assert.Equal(t, "value_already_owned", errors.ErrCodeValueAlreadyOwned.String())
	assert.Equal(t, "code_42", errors.ErrorCode(42).String())
}

func TestIndexError_ToGRPCStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *errors.IndexError
		want codes.Code
	}{
		{"non monotonic", errors.NonMonotonicContext(1, 1), codes.FailedPrecondition},
		{"already owned", errors.ValueAlreadyOwned("v", "k"), codes.AlreadyExists},
		{"invalid key", errors.InvalidKey("", "empty"), codes.InvalidArgument},
		{"value too large", errors.ValueTooLarge(10, 1), codes.InvalidArgument},
		{"internal", errors.InternalError("boom", nil), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.err.ToGRPCStatus()
			require.NotNil(t, st)
			assert.Equal(t, tt.want, st.Code())
			assert.Equal(t, tt.err.Error(), st.Message())
		})
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, codes.OK, errors.StatusOf(nil).Code())

	wrapped := fmt.Errorf("step 2: %w", errors.NonMonotonicContext(int64(2), int64(1)))
	st := errors.StatusOf(wrapped)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Equal(t, "context 1 is not after latest context 2", st.Message())

	assert.Equal(t, codes.Internal, errors.StatusOf(stderrors.New("plain")).Code())
}
