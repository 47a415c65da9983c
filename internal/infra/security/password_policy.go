package security

import (
	"fmt"
	"strings"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/arklim/iam-exchange/internal/infra/config"
)

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordPolicy enforces a minimum length and a minimum zxcvbn strength score.
type PasswordPolicy struct {
	minLength int
	minScore  int
}

// NewPasswordPolicy builds a policy from settings; non-positive values disable a rule.
func NewPasswordPolicy(cfg config.PasswordSettings) *PasswordPolicy {
	minScore := cfg.MinScore
	if minScore > 4 {
		minScore = 4
	}
	return &PasswordPolicy{minLength: cfg.MinLength, minScore: minScore}
}

// Validate returns a *PasswordValidationError for the first violated rule.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if p.minLength > 0 && len([]rune(password)) < p.minLength {
		return &PasswordValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("password must be at least %d characters long", p.minLength),
		}
	}

	if p.minScore <= 0 {
		return nil
	}

	inputs := make([]string, 0, len(userInputs)*2)
	for _, input := range userInputs {
		input = strings.ToLower(strings.TrimSpace(input))
		if input == "" {
			continue
		}
		inputs = append(inputs, input)
		// The local part of an email is the guessable bit.
		if local, _, ok := strings.Cut(input, "@"); ok && local != "" {
			inputs = append(inputs, local)
		}
	}

	if zxcvbn.PasswordStrength(password, inputs).Score < p.minScore {
		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	}
	return nil
}
