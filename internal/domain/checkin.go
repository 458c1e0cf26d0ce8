package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CheckInStatus string

const (
	CheckInPending   CheckInStatus = "pending"
	CheckInCompleted CheckInStatus = "completed"
	CheckInMissed    CheckInStatus = "missed"
)

// CheckIn is one scheduled progress round for an assignment.
// (AssignmentID, Round) is unique.
type CheckIn struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID     primitive.ObjectID `bson:"tenantId" json:"tenantId"`
	AssignmentID primitive.ObjectID `bson:"assignmentId" json:"assignmentId"`
	ClientID     primitive.ObjectID `bson:"clientId" json:"clientId"`
	Round        int                `bson:"round" json:"round"`
	DueDate      time.Time          `bson:"dueDate" json:"dueDate"`
	Status       CheckInStatus      `bson:"status" json:"status"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}

// BuildCheckInSchedule lays out one round per interval starting one interval
// after start. Dates are truncated to the UTC day.
func BuildCheckInSchedule(a *PlanAssignment, rounds int, interval time.Duration, now time.Time) []CheckIn {
	if rounds <= 0 || interval <= 0 {
		return nil
	}
	start := a.StartDate.UTC().Truncate(24 * time.Hour)
	out := make([]CheckIn, 0, rounds)
	for i := 1; i <= rounds; i++ {
		out = append(out, CheckIn{
			TenantID:     a.TenantID,
			AssignmentID: a.ID,
			ClientID:     a.ClientID,
			Round:        i,
			DueDate:      start.Add(time.Duration(i) * interval),
			Status:       CheckInPending,
			CreatedAt:    now,
		})
	}
	return out
}
