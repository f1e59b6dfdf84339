package validation_test

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/devrev/pairdb/contextmap/internal/errors"
	"github.com/devrev/pairdb/contextmap/internal/model"
	"github.com/devrev/pairdb/contextmap/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ValidateStep(t *testing.T) {
	v := validation.NewValidatorWithLimits(8, 8, 10)

	tests := []struct {
		name     string
		step     model.Step
		wantCode errors.ErrorCode
	}{
		{"valid overwrite", model.Step{Op: model.OperationTypeOverwrite, Key: "k", Value: "v", Expect: "ok"}, errors.ErrCodeOK},
		{"valid update", model.Step{Op: model.OperationTypeUpdate, Key: "k", Value: "v"}, errors.ErrCodeOK},
		{"valid retract", model.Step{Op: model.OperationTypeRetract, Key: "k", Expect: "non_monotonic_context"}, errors.ErrCodeOK},
		{"valid get", model.Step{Op: model.OperationTypeGet, Key: "k", Value: "v", Expect: "live"}, errors.ErrCodeOK},
		{"valid unchecked get", model.Step{Op: model.OperationTypeGet, Key: "k"}, errors.ErrCodeOK},
		{"empty key", model.Step{Op: model.OperationTypeGet}, errors.ErrCodeInvalidKey},
		{"key too large", model.Step{Op: model.OperationTypeGet, Key: "123456789"}, errors.ErrCodeKeyTooLarge},
		{"control character", model.Step{Op: model.OperationTypeGet, Key: "a\x01"}, errors.ErrCodeInvalidKey},
		{"write without value", model.Step{Op: model.OperationTypeNoOverwrite, Key: "k"}, errors.ErrCodeInvalidValue},
		{"value too large", model.Step{Op: model.OperationTypeOverwrite, Key: "k", Value: "123456789"}, errors.ErrCodeValueTooLarge},
		{"null byte value", model.Step{Op: model.OperationTypeOverwrite, Key: "k", Value: "a\x00"}, errors.ErrCodeInvalidValue},
		{"retract with value", model.Step{Op: model.OperationTypeRetract, Key: "k", Value: "v"}, errors.ErrCodeInvalidValue},
		{"retract cannot conflict", model.Step{Op: model.OperationTypeRetract, Key: "k", Expect: "value_already_owned"}, errors.ErrCodeInvalidArgument},
		{"read expectation on write", model.Step{Op: model.OperationTypeOverwrite, Key: "k", Value: "v", Expect: "live"}, errors.ErrCodeInvalidArgument},
		{"value without live expectation", model.Step{Op: model.OperationTypeGet, Key: "k", Value: "v", Expect: "retracted"}, errors.ErrCodeInvalidValue},
		{"unknown op", model.Step{Op: "delete", Key: "k"}, errors.ErrCodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStep(&tt.step)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
		})
	}
}

func TestValidator_ValidateScript(t *testing.T) {
	v := validation.NewValidator()

	valid := &model.Script{
		Name: "transfer",
		Steps: []model.Step{
			{Op: model.OperationTypeOverwrite, Key: "a", Context: 1, Value: "v"},
			{Op: model.OperationTypeGet, Key: "a", Context: 1, Value: "v", Expect: "live"},
		},
	}
	require.NoError(t, v.ValidateScript(valid))

	err := v.ValidateScript(&model.Script{Name: " ", Steps: valid.Steps})
	assert.ErrorContains(t, err, "script name cannot be empty")

	err = v.ValidateScript(&model.Script{Name: "empty"})
	assert.ErrorContains(t, err, "has no steps")

	err = v.ValidateScript(&model.Script{Name: "p", Policy: "maybe", Steps: valid.Steps})
	assert.ErrorContains(t, err, "unknown policy")

	bad := &model.Script{
		Name: "bad",
		Steps: []model.Step{
			{Op: model.OperationTypeGet, Key: "a"},
			{Op: model.OperationTypeGet, Key: ""},
		},
	}
	err = v.ValidateScript(bad)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "script bad step 1: invalid key"))
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))
	assert.True(t, stderrors.Is(err, &errors.IndexError{Code: errors.ErrCodeInvalidKey}))
}

func TestValidator_MaxSteps(t *testing.T) {
	v := validation.NewValidatorWithLimits(validation.MaxKeySize, validation.MaxValueSize, 2)

	script := &model.Script{Name: "long"}
	for i := 0; i < 3; i++ {
		script.Steps = append(script.Steps, model.Step{Op: model.OperationTypeGet, Key: "k", Context: int64(i)})
	}

	err := v.ValidateScript(script)
	assert.ErrorContains(t, err, "too many steps: 3 > 2")
}
