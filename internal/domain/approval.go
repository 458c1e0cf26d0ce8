package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// ReviewStatus maps a decision onto the catalog visibility it implies.
func (s ApprovalStatus) ReviewStatus() ReviewStatus {
	switch s {
	case ApprovalApproved:
		return ReviewApproved
	case ApprovalRejected:
		return ReviewRejected
	}
	return ReviewPending
}

// ApprovalWorkflow gates a piece of catalog content behind human review.
type ApprovalWorkflow struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	TenantID    primitive.ObjectID  `bson:"tenantId" json:"tenantId"`
	EntityType  EntityType          `bson:"entityType" json:"entityType"`
	EntityID    primitive.ObjectID  `bson:"entityId" json:"entityId"`
	Status      ApprovalStatus      `bson:"status" json:"status"`
	SubmittedBy primitive.ObjectID  `bson:"submittedBy" json:"submittedBy"`
	ReviewedBy  *primitive.ObjectID `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time          `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	Notes       string              `bson:"notes,omitempty" json:"notes,omitempty"`
	Metadata    ApprovalMetadata    `bson:"metadata" json:"metadata"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time           `bson:"updatedAt" json:"updatedAt"`
}

type ApprovalMetadata struct {
	Source          string            `bson:"source,omitempty" json:"source,omitempty"` // e.g. "ai"
	ConfidenceScore *float64          `bson:"confidenceScore,omitempty" json:"confidenceScore,omitempty"`
	Extra           map[string]string `bson:"extra,omitempty" json:"extra,omitempty"`
}
