package client

import "testing"

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "Too Short", input: "ab", wantErr: true},
		{name: "Minimum", input: "abc"},
		{name: "Maximum", input: "abcdefghijklmnopqrst"},
		{name: "Too Long", input: "abcdefghijklmnopqrstu", wantErr: true},
		{name: "Allowed Symbols", input: "john.doe-1_x"},
		{name: "Whitespace", input: "john doe", wantErr: true},
		{name: "Umlaut", input: "jürgen", wantErr: true},
		{name: "Empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !IsValidationError(err) {
				t.Errorf("ValidateUsername(%q) error is %T, want *ValidationError", tt.input, err)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{input: "john@example.com"},
		{input: "john.doe+tag@mail.example.org"},
		{input: "", wantErr: true},
		{input: "john", wantErr: true},
		{input: "john@localhost", wantErr: true},
		{input: "john@@example.com", wantErr: true},
		{input: "john doe@example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if err := ValidateEmail(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSignup(t *testing.T) {
	valid := SignupRequest{
		Username:        "john",
		Email:           "john@example.com",
		Password:        "password1",
		ConfirmPassword: "password1",
	}
	if err := ValidateSignup(valid); err != nil {
		t.Fatalf("ValidateSignup() error = %v", err)
	}

	tests := []struct {
		name      string
		mutate    func(r *SignupRequest)
		wantField string
	}{
		{name: "Short Username", mutate: func(r *SignupRequest) { r.Username = "jo" }, wantField: "username"},
		{name: "Bad Email", mutate: func(r *SignupRequest) { r.Email = "john" }, wantField: "email"},
		{name: "Short Password", mutate: func(r *SignupRequest) { r.Password, r.ConfirmPassword = "short", "short" }, wantField: "password"},
		{name: "Mismatch", mutate: func(r *SignupRequest) { r.ConfirmPassword = "password2" }, wantField: "confirmPassword"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := ValidateSignup(req)
			v, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("ValidateSignup() error = %v, want *ValidationError", err)
			}
			if v.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", v.Field, tt.wantField)
			}
		})
	}
}
