package validator

import (
	"strings"
	"testing"
)

type chirpBody struct {
	Message string `validate:"required,max=255"`
	UserID  string `validate:"required"`
}

func TestValidator_ValidateStruct(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		input   interface{}
		wantErr bool
		fields  []string
	}{
		{
			name: "Valid chirp",
			input: chirpBody{
				Message: "Just setting up my chirper",
				UserID:  "user-1",
			},
			wantErr: false,
		},
		{
			name:    "Missing required fields",
			input:   chirpBody{},
			wantErr: true,
			fields:  []string{"Message", "UserID"},
		},
		{
			name: "Message too long",
			input: chirpBody{
				Message: strings.Repeat("a", 256),
				UserID:  "user-1",
			},
			wantErr: true,
			fields:  []string{"Message"},
		},
		{
			name: "Message at the limit",
			input: chirpBody{
				Message: strings.Repeat("a", 255),
				UserID:  "user-1",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.ValidateStruct(tt.input)

			if tt.wantErr && len(errs) == 0 {
				t.Error("ValidateStruct() expected errors but got none")
				return
			}

			if !tt.wantErr && len(errs) > 0 {
				t.Errorf("ValidateStruct() got unexpected errors: %v", errs)
				return
			}

			for _, expectedField := range tt.fields {
				found := false
				for _, err := range errs {
					if err.Field == expectedField {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("Expected validation error for field %s, but got none", expectedField)
				}
			}
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		value   interface{}
		tag     string
		wantErr bool
	}{
		{
			name:    "Required value present",
			value:   "chirp",
			tag:     "required",
			wantErr: false,
		},
		{
			name:    "Required value empty",
			value:   "",
			tag:     "required",
			wantErr: true,
		},
		{
			name:    "Max respected",
			value:   "short",
			tag:     "max=255",
			wantErr: false,
		},
		{
			name:    "Max exceeded",
			value:   strings.Repeat("a", 300),
			tag:     "max=255",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.Validate(tt.value, tt.tag)

			if tt.wantErr && len(errs) == 0 {
				t.Error("Validate() expected errors but got none")
			}

			if !tt.wantErr && len(errs) > 0 {
				t.Errorf("Validate() got unexpected errors: %v", errs)
			}
		})
	}
}

func TestNew(t *testing.T) {
	v := New()
	if v == nil || v.cli == nil {
		t.Error("New() returned invalid validator")
	}
}
