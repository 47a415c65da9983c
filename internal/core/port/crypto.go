package port

// PasswordHasher turns passwords into self-describing encoded hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches encoded; a malformed hash is an error.
	Verify(password, encoded string) (bool, error)
}

// PasswordPolicy rejects passwords that are too weak to accept. userInputs
// (email, names) are penalised when they appear in the password.
type PasswordPolicy interface {
	Validate(password string, userInputs ...string) error
}
