package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	ExchangeAttempts  *ExchangeAttemptRepository
	IdempotentRecords *IdempotentRecordRepository
	Accounts          *AccountRepository
	Credentials       *CredentialsRepository
	RefreshTokens     *RefreshTokenRepository
}

// NewRepositories wires all repositories backed by the provided executor.
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		ExchangeAttempts:  NewExchangeAttemptRepository(exec),
		IdempotentRecords: NewIdempotentRecordRepository(exec),
		Accounts:          NewAccountRepository(exec),
		Credentials:       NewCredentialsRepository(exec),
		RefreshTokens:     NewRefreshTokenRepository(exec),
	}
}
