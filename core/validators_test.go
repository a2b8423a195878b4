package core

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validated struct {
	Name string `json:"name" validate:"required,notblank,singleline"`
	Date string `json:"date" validate:"isodate"`
	Code string `json:"code" validate:"omitempty,upper_alphanum"`
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		obj     validated
		wantErr map[string]string
	}{
		{name: "valid", obj: validated{Name: "Amani", Date: "2025-10-03", Code: "FT1"}},
		{name: "empty date", obj: validated{Name: "Amani"}},
		{name: "missing name", obj: validated{}, wantErr: map[string]string{"name": "this field is required"}},
		{name: "blank name", obj: validated{Name: "   "}, wantErr: map[string]string{"name": "this field cannot be blank"}},
		{
			name:    "control characters",
			obj:     validated{Name: "Amani\tJuma"},
			wantErr: map[string]string{"name": "name must not contain control characters"},
		},
		{
			name:    "bad date",
			obj:     validated{Name: "Amani", Date: "2025-02-30"},
			wantErr: map[string]string{"date": "date must be a date formatted as YYYY-MM-DD"},
		},
		{
			name:    "lower code",
			obj:     validated{Name: "Amani", Code: "ft"},
			wantErr: map[string]string{"code": "code must only contain uppercase letters and digits"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate.Struct(tt.obj)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			vErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok)
			assert.Equal(t, tt.wantErr, TranslateErrors(vErrs, Translator))
		})
	}
}

func TestHasControlChars(t *testing.T) {
	assert.False(t, HasControlChars("Faculty of Technology"))
	assert.True(t, HasControlChars("a\x1fb"))
	assert.True(t, HasControlChars("line\n"))
}
