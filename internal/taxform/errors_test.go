package taxform

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	cause := errors.New("no such file")
	err := newError(KindTemplateMissing, "form_1040", "template not found", cause)

	assert.Equal(t, "[TEMPLATE_MISSING] form_1040: template not found: no such file", err.Error())
	assert.ErrorIs(t, err, ErrTemplateMissing)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrUnknownForm)

	wrapped := fmt.Errorf("render: %w", err)
	assert.ErrorIs(t, wrapped, ErrTemplateMissing)
	assert.Equal(t, KindTemplateMissing, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(cause))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestErrorKind_String(t *testing.T) {
	tests := map[ErrorKind]string{
		KindUnknownForm:      "UNKNOWN_FORM",
		KindTemplateMissing:  "TEMPLATE_MISSING",
		KindInvalidPayload:   "INVALID_PAYLOAD",
		KindNoMappingForForm: "NO_MAPPING_FOR_FORM",
		KindFillFailure:      "FILL_FAILURE",
		KindUnknown:          "UNKNOWN",
	}
	for kind, want := range tests {
		assert.Equal(t, want, kind.String())
	}
}
