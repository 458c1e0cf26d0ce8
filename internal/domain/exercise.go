// internal/domain/exercise.go
package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EntityType names the kinds of catalog content that go through review.
type EntityType string

const (
	EntityExercise  EntityType = "exercise"
	EntityNutrition EntityType = "nutrition"
	EntityWorkout   EntityType = "workout"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityExercise, EntityNutrition, EntityWorkout:
		return true
	}
	return false
}

// ReviewStatus is the catalog-side visibility of an entity. Only approved
// entries show up in active catalog queries.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending_review"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Exercise represents a single exercise definition in the tenant library.
type Exercise struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID         primitive.ObjectID `bson:"tenantId" json:"tenantId"`
	Name             string             `bson:"name" json:"name"`
	Description      string             `bson:"description,omitempty" json:"description,omitempty"`
	MuscleGroup      string             `bson:"muscleGroup,omitempty" json:"muscleGroup,omitempty"`           // e.g., "Chest", "Legs", "Back"
	ExecutionTechnic string             `bson:"executionTechnic,omitempty" json:"executionTechnic,omitempty"` // Detailed instructions
	Difficulty       string             `bson:"difficulty,omitempty" json:"difficulty,omitempty"`             // e.g., "Novice", "Medium", "Advanced"
	VideoURL         string             `bson:"videoUrl,omitempty" json:"videoUrl,omitempty"`
	Source           string             `bson:"source,omitempty" json:"source,omitempty"` // "manual" or "ai"
	ReviewStatus     ReviewStatus       `bson:"status" json:"status"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// CatalogEntry is the uniform view of any reviewable catalog entity.
type CatalogEntry struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	TenantID     primitive.ObjectID `bson:"tenantId" json:"tenantId"`
	EntityType   EntityType         `bson:"-" json:"entityType"`
	Name         string             `bson:"name" json:"name"`
	ReviewStatus ReviewStatus       `bson:"status" json:"status"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}
