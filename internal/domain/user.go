package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role of an authenticated tenant member.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleCoach    Role = "coach"
	RoleReviewer Role = "reviewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleCoach, RoleReviewer:
		return true
	}
	return false
}

// Client is the coached person a plan is delivered to.
type Client struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	TenantID   primitive.ObjectID  `bson:"tenantId" json:"tenantId"`
	ClientCode string              `bson:"clientCode,omitempty" json:"clientCode,omitempty"`
	FirstName  string              `bson:"firstName" json:"firstName"`
	LastName   string              `bson:"lastName" json:"lastName"`
	Email      string              `bson:"email,omitempty" json:"email,omitempty"`
	Phone      string              `bson:"phone,omitempty" json:"phone,omitempty"`
	TrainerID  *primitive.ObjectID `bson:"trainerId,omitempty" json:"trainerId,omitempty"`
	CreatedAt  time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time           `bson:"updatedAt" json:"updatedAt"`
}

func (c *Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Member is a tenant staff account (coach, reviewer, owner).
type Member struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID  primitive.ObjectID `bson:"tenantId" json:"tenantId"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Role      Role               `bson:"role" json:"role"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
