package domain

import "time"

// IdempotentRecord remembers which entity a client-supplied key produced.
// At most one record exists per (IdempotentKey, EntityType).
type IdempotentRecord struct {
	ID            string
	IdempotentKey string
	EntityType    EntityType
	EntityID      string
	CreatedAt     time.Time
}
