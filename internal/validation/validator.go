package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/devrev/pairdb/contextmap/internal/errors"
	"github.com/devrev/pairdb/contextmap/internal/model"
)

const (
	// Size limits
	MaxKeySize   = 1024      // 1 KB
	MaxValueSize = 64 * 1024 // 64 KB
	MaxSteps     = 100000
)

var (
	writeExpectations = []string{model.OutcomeOK, model.OutcomeNonMonotonicContext, model.OutcomeValueAlreadyOwned}
	readExpectations  = []string{model.OutcomeLive, model.OutcomeRetracted, model.OutcomeUnrecorded}
)

// Validator validates replay scripts before they reach an index
type Validator struct {
	maxKeySize   int
	maxValueSize int
	maxSteps     int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxKeySize:   MaxKeySize,
		maxValueSize: MaxValueSize,
		maxSteps:     MaxSteps,
	}
}

// NewValidatorWithLimits creates a validator with custom limits
func NewValidatorWithLimits(maxKeySize, maxValueSize, maxSteps int) *Validator {
	return &Validator{
		maxKeySize:   maxKeySize,
		maxValueSize: maxValueSize,
		maxSteps:     maxSteps,
	}
}

// ValidateScript validates a script and every one of its steps
func (v *Validator) ValidateScript(script *model.Script) error {
	if strings.TrimSpace(script.Name) == "" {
		return errors.InvalidArgument("script name cannot be empty", nil)
	}

	switch script.Policy {
	case "", string(model.OperationTypeOverwrite), string(model.OperationTypeNoOverwrite):
	default:
		return errors.InvalidArgument(fmt.Sprintf("script %s: unknown policy %q", script.Name, script.Policy), nil)
	}

	if len(script.Steps) == 0 {
		return errors.InvalidArgument(fmt.Sprintf("script %s has no steps", script.Name), nil)
	}
	if len(script.Steps) > v.maxSteps {
		return errors.InvalidArgument(
			fmt.Sprintf("script %s has too many steps: %d > %d", script.Name, len(script.Steps), v.maxSteps),
			nil,
		)
	}

	for i := range script.Steps {
		if err := v.ValidateStep(&script.Steps[i]); err != nil {
			return errors.InvalidArgument(fmt.Sprintf("script %s step %d", script.Name, i), err)
		}
	}

	return nil
}

// ValidateStep validates a single step
func (v *Validator) ValidateStep(step *model.Step) error {
	if err := v.ValidateKey(step.Key); err != nil {
		return err
	}

	switch {
	case step.Op.IsWrite():
		if step.Value == "" {
			return errors.InvalidValue(step.Value, "value cannot be empty for "+string(step.Op))
		}
		if err := v.ValidateValue(step.Value); err != nil {
			return err
		}
		return validateExpect(step, writeExpectations)

	case step.Op == model.OperationTypeRetract:
		if step.Value != "" {
			return errors.InvalidValue(step.Value, "retract does not take a value")
		}
		return validateExpect(step, writeExpectations[:2])

	case step.Op == model.OperationTypeGet:
		if err := validateExpect(step, readExpectations); err != nil {
			return err
		}
		if step.Value != "" && step.Expect != model.OutcomeLive {
			return errors.InvalidValue(step.Value, "expected value requires expect: live")
		}
		return v.ValidateValue(step.Value)

	default:
		return errors.InvalidArgument(fmt.Sprintf("unknown op %q", step.Op), nil)
	}
}

func validateExpect(step *model.Step, allowed []string) error {
	if step.Expect == "" {
		return nil
	}
	for _, a := range allowed {
		if step.Expect == a {
			return nil
		}
	}
	return errors.InvalidArgument(
		fmt.Sprintf("expect %q is not valid for %s (want one of %s)", step.Expect, step.Op, strings.Join(allowed, ", ")),
		nil,
	)
}

// ValidateKey validates a key
func (v *Validator) ValidateKey(key string) error {
	if key == "" {
		return errors.InvalidKey(key, "key cannot be empty")
	}

	if len(key) > v.maxKeySize {
		return errors.KeyTooLarge(len(key), v.maxKeySize)
	}

	// Tab and newline are allowed, other control characters are not
	for _, r := range key {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			return errors.InvalidKey(key, "key cannot contain control characters")
		}
	}

	return nil
}

// ValidateValue validates a value. Empty values pass; callers decide
// whether a value is required.
func (v *Validator) ValidateValue(value string) error {
	if len(value) > v.maxValueSize {
		return errors.ValueTooLarge(len(value), v.maxValueSize)
	}

	if strings.Contains(value, "\x00") {
		return errors.InvalidValue(value, "value cannot contain null bytes")
	}

	return nil
}
