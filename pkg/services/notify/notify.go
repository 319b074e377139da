package notify

import (
	"context"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
)

// Publisher announces finding transitions. Delivery is best effort; callers
// log failures and move on.
type Publisher interface {
	Publish(ctx context.Context, events ...domain.FindingEvent) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...domain.FindingEvent) error { return nil }
func (NopPublisher) Close() error                                          { return nil }
