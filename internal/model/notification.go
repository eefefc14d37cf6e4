package model

import "time"

// NotificationKind описывает тип уведомления.
type NotificationKind string

const (
	NotificationWelcome           NotificationKind = "user.welcome"
	NotificationPurchaseCreated   NotificationKind = "purchase.created"
	NotificationPurchaseVerified  NotificationKind = "purchase.verified"
	NotificationPurchaseRefunded  NotificationKind = "purchase.refunded"
	NotificationEventRegistration NotificationKind = "event.registered"
)

// Notification описывает письмо, которое нужно отправить после зафиксированного изменения.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	Email      string           `json:"email"`
	Name       string           `json:"name"`
	PurchaseID int64            `json:"purchaseId,omitempty"`
	CourseID   int64            `json:"courseId,omitempty"`
	EventID    int64            `json:"eventId,omitempty"`
	Status     string           `json:"status,omitempty"`
	Notes      string           `json:"notes,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
}
