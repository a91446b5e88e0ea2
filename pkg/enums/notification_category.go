package enums

// NotificationCategory tags outbound notification dispatches so the delivery
// service can route them (push vs email vs SMS is decided downstream).
type NotificationCategory string

const (
	NotificationLoadPublished NotificationCategory = "load_published"
	NotificationLoadCancelled NotificationCategory = "load_cancelled"
	NotificationPriceMatch    NotificationCategory = "price_match"
	NotificationAssignment    NotificationCategory = "assignment"
)
