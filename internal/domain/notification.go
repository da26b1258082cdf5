package domain

import "time"

// NotificationStatus represents the dispatch state of a campaign.
type NotificationStatus string

// Notification statuses. A notification leaves pending exactly once.
const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Notification is one campaign sent to a site's subscribers.
type Notification struct {
	ID             string             `json:"id"`
	SiteID         string             `json:"site_id"`
	Title          string             `json:"title"`
	Body           string             `json:"body"`
	URL            string             `json:"url,omitempty"`
	SentCount      int                `json:"sent_count"`
	FailedCount    int                `json:"failed_count"`
	DeliveredCount int                `json:"delivered_count"`
	ClickedCount   int                `json:"clicked_count"`
	Status         NotificationStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	SentAt         *time.Time         `json:"sent_at,omitempty"`
}

// DeliveryOutcome is the result recorded for one delivery event.
type DeliveryOutcome string

// Delivery outcomes.
const (
	DeliveryOutcomeSent      DeliveryOutcome = "sent"
	DeliveryOutcomeDelivered DeliveryOutcome = "delivered"
	DeliveryOutcomeClicked   DeliveryOutcome = "clicked"
	DeliveryOutcomeFailed    DeliveryOutcome = "failed"
)

// DeliveryEvent is an append-only record of one outcome for a notification.
// SubscriptionID is empty for client callbacks, which carry only the notification id.
type DeliveryEvent struct {
	ID             string          `json:"id"`
	NotificationID string          `json:"notification_id"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	Outcome        DeliveryOutcome `json:"outcome"`
	StatusCode     int             `json:"status_code,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DispatchLog summarizes one fan-out.
type DispatchLog struct {
	NotificationID string        `json:"notification_id"`
	SiteID         string        `json:"site_id"`
	Attempted      int           `json:"attempted"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	Pruned         int           `json:"pruned"`
	Duration       time.Duration `json:"duration"`
	CreatedAt      time.Time     `json:"created_at"`
}
