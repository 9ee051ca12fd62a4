package core

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "081234567890", want: "6281234567890"},
		{in: "+62 812-3456-7890", want: "6281234567890"},
		{in: "6281234567890", want: "6281234567890"},
		{in: "81234567890", want: "6281234567890"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizePhone(tt.in); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitValidators(t *testing.T) {
	validate := validator.New()
	translator := NewTranslator()
	InitValidators(validate, translator)

	type payload struct {
		Name  string `json:"name" validate:"notblank"`
		Phone string `json:"phone" validate:"phone_id"`
		Code  string `json:"code" validate:"alphanum_"`
	}

	tests := []struct {
		name       string
		data       payload
		wantFields map[string]string
	}{
		{name: "valid", data: payload{Name: "Masjid Al Falah", Phone: "6281234567890", Code: "JKT_01"}},
		{
			name: "all invalid",
			data: payload{Name: "  ", Phone: "021555", Code: "jkt-01"},
			wantFields: map[string]string{
				"name":  notBlankText,
				"phone": phoneText,
				"code":  alphaNumUnderText,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.data)
			if tt.wantFields == nil {
				if err != nil {
					t.Fatalf("validate.Struct() unexpected error = %v", err)
				}
				return
			}
			vErrs, ok := err.(validator.ValidationErrors)
			if !ok {
				t.Fatalf("validate.Struct() error = %v, want validator.ValidationErrors", err)
			}
			got := make(map[string]string, len(vErrs))
			for _, fe := range vErrs {
				got[fe.Field()] = fe.Translate(translator)
			}
			for fld, msg := range tt.wantFields {
				if got[fld] != msg {
					t.Errorf("field %s = %q, want %q", fld, got[fld], msg)
				}
			}
		})
	}
}
