package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AssignmentStatus is owned by the coach (complete/cancel).
type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "active"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentActive, AssignmentCompleted, AssignmentCancelled:
		return true
	}
	return false
}

// DeliveryStatus tracks getting the plan into the client's hands.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliverySent, DeliveryDelivered, DeliveryFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal delivery
// transition. failed -> pending is only reachable through an explicit retry.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	if next == DeliveryFailed {
		return s != DeliveryDelivered
	}
	switch s {
	case DeliveryPending:
		return next == DeliverySent
	case DeliverySent:
		return next == DeliveryDelivered
	case DeliveryFailed:
		return next == DeliveryPending
	}
	return false
}

// Channel is the transport used to reach the client.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelSMS, ChannelEmail:
		return true
	}
	return false
}

// DeliveryStep names one external call of the delivery sequence.
type DeliveryStep string

const (
	StepLoad         DeliveryStep = "load"
	StepRender       DeliveryStep = "render"
	StepSend         DeliveryStep = "send"
	StepPortal       DeliveryStep = "portal"
	StepCheckIns     DeliveryStep = "checkins"
	StepNotification DeliveryStep = "notification"
	StepFinalize     DeliveryStep = "finalize"
)

// PlanAssignment binds a specific plan version to a client.
type PlanAssignment struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	TenantID        primitive.ObjectID  `bson:"tenantId" json:"tenantId"`
	ClientID        primitive.ObjectID  `bson:"clientId" json:"clientId"`
	PlanID          primitive.ObjectID  `bson:"planId" json:"planId"`
	PlanVersion     int                 `bson:"planVersion" json:"planVersion"`
	AssignedBy      *primitive.ObjectID `bson:"assignedBy,omitempty" json:"assignedBy,omitempty"`
	Status          AssignmentStatus    `bson:"status" json:"status"`
	DeliveryStatus  DeliveryStatus      `bson:"deliveryStatus" json:"deliveryStatus"`
	DeliveryChannel Channel             `bson:"deliveryChannel" json:"deliveryChannel"`
	DeliveredAt     *time.Time          `bson:"deliveredAt" json:"deliveredAt,omitempty"` // non-nil iff delivered
	StartDate       time.Time           `bson:"startDate" json:"startDate"`
	Delivery        DeliveryProgress    `bson:"delivery" json:"delivery"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// DeliveryProgress records which delivery steps have completed so a retry
// can resume instead of starting over.
type DeliveryProgress struct {
	Attempts       int        `bson:"attempts" json:"attempts"`
	LeaseID        string     `bson:"leaseId,omitempty" json:"-"`
	LeaseExpiresAt *time.Time `bson:"leaseExpiresAt,omitempty" json:"-"`
	LastAttemptAt  *time.Time `bson:"lastAttemptAt,omitempty" json:"lastAttemptAt,omitempty"`

	PDFObjectKey string     `bson:"pdfObjectKey,omitempty" json:"-"`
	PDFURL       string     `bson:"pdfUrl,omitempty" json:"pdfUrl,omitempty"`
	RenderedAt   *time.Time `bson:"renderedAt,omitempty" json:"renderedAt,omitempty"`

	PortalToken string `bson:"portalToken,omitempty" json:"-"`
	PortalLink  string `bson:"portalLink,omitempty" json:"portalLink,omitempty"`

	SentAt     *time.Time `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	MessageIDs []string   `bson:"messageIds,omitempty" json:"messageIds,omitempty"`

	PortalLinkedAt        *time.Time `bson:"portalLinkedAt,omitempty" json:"portalLinkedAt,omitempty"`
	CheckInsScheduledAt   *time.Time `bson:"checkInsScheduledAt,omitempty" json:"checkInsScheduledAt,omitempty"`
	CheckInCount          int        `bson:"checkInCount,omitempty" json:"checkInCount,omitempty"`
	NotificationClearedAt *time.Time `bson:"notificationClearedAt,omitempty" json:"notificationClearedAt,omitempty"`
	DismissedNotification bool       `bson:"dismissedNotification,omitempty" json:"dismissedNotification,omitempty"`

	FailedStep DeliveryStep `bson:"failedStep,omitempty" json:"failedStep,omitempty"`
	LastError  string       `bson:"lastError,omitempty" json:"lastError,omitempty"`
}

func (p DeliveryProgress) Rendered() bool { return p.PDFObjectKey != "" && p.RenderedAt != nil }
func (p DeliveryProgress) Sent() bool { return p.SentAt != nil }
func (p DeliveryProgress) PortalLinked() bool { return p.PortalLinkedAt != nil }
func (p DeliveryProgress) CheckInsScheduled() bool { return p.CheckInsScheduledAt != nil }
func (p DeliveryProgress) NotificationCleared() bool { return p.NotificationClearedAt != nil }

// LeaseActive reports whether another delivery attempt currently holds the assignment.
func (p DeliveryProgress) LeaseActive(now time.Time) bool {
	return p.LeaseID != "" && p.LeaseExpiresAt != nil && p.LeaseExpiresAt.After(now)
}
