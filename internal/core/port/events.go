package port

import (
	"context"

	"github.com/arklim/iam-exchange/internal/core/domain"
)

// MessageBus publishes messages to named channels. Delivery is not guaranteed;
// implementations must not block on broker acknowledgements.
type MessageBus interface {
	Publish(ctx context.Context, channel string, message domain.Message) error
}
