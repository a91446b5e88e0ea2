package enums

// OutboxEventType names domain events queued through the transactional outbox.
type OutboxEventType string

const (
	EventLoadPublished        OutboxEventType = "load.published"
	EventLoadLive             OutboxEventType = "load.live"
	EventLoadClosed           OutboxEventType = "load.closed"
	EventLoadCancelled        OutboxEventType = "load.cancelled"
	EventLoadCompleted        OutboxEventType = "load.completed"
	EventLoadExtended         OutboxEventType = "load.extended"
	EventRateAccepted         OutboxEventType = "rate.accepted"
	EventCarrierAssigned      OutboxEventType = "assignment.created"
	EventCarrierUnassigned    OutboxEventType = "assignment.removed"
	EventPriceMatchRequested  OutboxEventType = "price_match.requested"
	EventPriceMatchNegotiated OutboxEventType = "price_match.negotiated"
	EventPriceMatchApproved   OutboxEventType = "price_match.approved"
	EventPriceMatchRejected   OutboxEventType = "price_match.rejected"
	EventNotificationDispatch OutboxEventType = "notification.dispatch"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateLoad         OutboxAggregateType = "load"
	AggregateAssignment   OutboxAggregateType = "assignment"
	AggregateNotification OutboxAggregateType = "notification"
)
