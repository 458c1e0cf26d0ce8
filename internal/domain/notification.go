package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationPlanReady is raised when a client finished intake and is
// waiting for a plan. Delivery dismisses it.
const NotificationPlanReady = "kyc_ready"

// Notification is a persistent dashboard notice for coaches.
type Notification struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID        primitive.ObjectID `bson:"tenantId" json:"tenantId"`
	Type            string             `bson:"type" json:"type"`
	RelatedEntityID primitive.ObjectID `bson:"relatedEntityId" json:"relatedEntityId"`
	Message         string             `bson:"message,omitempty" json:"message,omitempty"`
	IsDismissed     bool               `bson:"isDismissed" json:"isDismissed"`
	DismissedAt     *time.Time         `bson:"dismissedAt,omitempty" json:"dismissedAt,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
}
