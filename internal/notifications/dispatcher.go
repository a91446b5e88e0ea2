package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulbid/haulbid-backend/pkg/enums"
	apperrors "github.com/haulbid/haulbid-backend/pkg/errors"
	"github.com/haulbid/haulbid-backend/pkg/outbox"
)

// Dispatch is one outbound message. Delivery (push, email, SMS) is decided by
// the downstream service consuming the outbox; the engine only records intent.
type Dispatch struct {
	Recipients []uuid.UUID
	Message    string
	Category   enums.NotificationCategory
	// DeepLink is an opaque token the client app resolves to a screen.
	DeepLink string
}

// Dispatcher queues notifications inside the caller's transaction so a
// rolled-back mutation never produces a stray message.
type Dispatcher interface {
	Dispatch(ctx context.Context, tx *gorm.DB, dispatch Dispatch) error
}

type outboxDispatcher struct {
	events *outbox.Service
}

// NewOutboxDispatcher returns a Dispatcher backed by the transactional outbox.
func NewOutboxDispatcher(events *outbox.Service) (Dispatcher, error) {
	if events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &outboxDispatcher{events: events}, nil
}

func (d *outboxDispatcher) Dispatch(ctx context.Context, tx *gorm.DB, dispatch Dispatch) error {
	if len(dispatch.Recipients) == 0 {
		return apperrors.New(apperrors.CodeValidation, "at least one recipient is required")
	}
	if dispatch.Message == "" {
		return apperrors.New(apperrors.CodeValidation, "message is required")
	}

	recipients := make([]string, 0, len(dispatch.Recipients))
	for _, id := range dispatch.Recipients {
		recipients = append(recipients, id.String())
	}

	return d.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationDispatch,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Data: map[string]any{
			"recipients": recipients,
			"message":    dispatch.Message,
			"category":   dispatch.Category,
			"deepLink":   dispatch.DeepLink,
		},
		Version: 1,
	})
}
