package validate

import (
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid title", "Welcome", false},
		{"valid with spaces", "Course published", false},
		{"empty string", "", true},
		{"only spaces", "   ", true},
		{"only tabs", "\t\t", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Title(tt.input)
			assert.Equal(t, tt.wantErr, err != nil, "Title(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		})
	}
}

func TestType(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"", false},
		{"success", false},
		{"error", false},
		{"info", false},
		{"warning", false},
		{"urgent", true},
		{"INFO", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := Type(tt.input)
			assert.Equal(t, tt.wantErr, err != nil, "Type(%q) error = %v", tt.input, err)
		})
	}
}

func TestUserID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "student-42", false},
		{"email like", "a@example.com", false},
		{"empty", "", true},
		{"space", "a b", true},
		{"tab", "a\tb", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := UserID(tt.input)
			assert.Equal(t, tt.wantErr, err != nil, "UserID(%q) error = %v", tt.input, err)
		})
	}
}

func TestDraft(t *testing.T) {
	require.NoError(t, Draft("Welcome", "info"))

	err := Draft(" ", "urgent")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Len(t, fieldErrs, 2)
	assert.Equal(t, "title", fieldErrs[0].Field)
	assert.Equal(t, "type", fieldErrs[1].Field)
	assert.Contains(t, fieldErrs[1].Err.Error(), `invalid type "urgent"`)
}
