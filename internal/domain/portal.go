package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PortalLink lets a client open their delivered plan without an account.
// One link per assignment; re-delivery updates it in place.
type PortalLink struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID     primitive.ObjectID `bson:"tenantId" json:"tenantId"`
	AssignmentID primitive.ObjectID `bson:"assignmentId" json:"assignmentId"`
	ClientID     primitive.ObjectID `bson:"clientId" json:"clientId"`
	PlanID       primitive.ObjectID `bson:"planId" json:"planId"`
	Token        string             `bson:"token" json:"-"`
	URL          string             `bson:"url" json:"url"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}
