package model

import "time"

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// NotificationPayload is what the core asks the notification store to deliver.
type NotificationPayload struct {
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Type      NotificationType     `json:"type"`
	Priority  NotificationPriority `json:"priority"`
	ActionRef string               `json:"actionRef,omitempty"`
}

// Notification is one inbox entry for one user.
type Notification struct {
	ID        string               `json:"id" bson:"_id"`
	UserID    string               `json:"userId" bson:"userId"`
	Title     string               `json:"title" bson:"title"`
	Message   string               `json:"message" bson:"message"`
	Type      NotificationType     `json:"type" bson:"type"`
	Priority  NotificationPriority `json:"priority" bson:"priority"`
	ActionRef string               `json:"actionRef,omitempty" bson:"actionRef,omitempty"`
	Read      bool                 `json:"read" bson:"read"`
	CreatedAt time.Time            `json:"createdAt" bson:"createdAt"`
}
