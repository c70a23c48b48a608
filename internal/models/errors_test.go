package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_ErrorFormatsFieldAndMessage(t *testing.T) {
	err := &ValidationError{Field: "stimulus", Message: "must not be empty"}
	assert.Equal(t, "stimulus: must not be empty", err.Error())
}

func TestGraftError_ErrorDescribesSkippedLabel(t *testing.T) {
	err := &GraftError{Label: LabelAttribute, Reason: "duplicate"}
	assert.Equal(t, "graft ATTRIBUTE skipped: duplicate", err.Error())
}

func TestGraftError_UnwrapExposesWrappedError(t *testing.T) {
	wrapped := errors.New("underlying cause")
	err := &GraftError{Label: LabelConsequence, Reason: "cycle", Err: wrapped}

	assert.ErrorIs(t, err, wrapped)
	assert.Equal(t, wrapped, err.Unwrap())
}

func TestGraftError_UnwrapNilWhenNoUnderlyingError(t *testing.T) {
	err := &GraftError{Label: LabelValue, Reason: "no candidate"}
	assert.Nil(t, err.Unwrap())
}
