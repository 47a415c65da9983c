package security

import (
	"errors"
	"testing"

	"github.com/arklim/iam-exchange/internal/infra/config"
)

func TestPasswordPolicy(t *testing.T) {
	policy := NewPasswordPolicy(config.PasswordSettings{MinLength: 10, MinScore: 3})

	tests := []struct {
		name     string
		password string
		inputs   []string
		code     string
	}{
		{name: "too short", password: "aB3$x", code: "min_length"},
		{name: "dictionary word", password: "password123", code: "weak_password"},
		{name: "repeats email", password: "frederick.smith", inputs: []string{"Frederick.Smith@example.com"}, code: "weak_password"},
		{name: "strong", password: "Xk9#mQ2$vL7!pR4z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Validate(tt.password, tt.inputs...)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("expected password to pass, got %v", err)
				}
				return
			}
			var violation *PasswordValidationError
			if !errors.As(err, &violation) || violation.Code != tt.code {
				t.Fatalf("expected %s violation, got %v", tt.code, err)
			}
		})
	}
}

func TestPasswordPolicyDisabledRules(t *testing.T) {
	policy := NewPasswordPolicy(config.PasswordSettings{})
	if err := policy.Validate("a"); err != nil {
		t.Fatalf("zero settings must accept any password, got %v", err)
	}
}
