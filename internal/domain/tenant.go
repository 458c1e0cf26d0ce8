package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultPrimaryColor = "#00C26A"
	DefaultCompanyName  = "FitCoach Pro"
)

// Tenant is a coaching business. Every other record is scoped to one.
type Tenant struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Branding  Branding           `bson:"branding" json:"branding"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Branding drives the rendered plan's look. Version is bumped on every edit
// so rendered PDFs can be cached per (plan version, branding version).
type Branding struct {
	CompanyName  string `bson:"companyName,omitempty" json:"companyName,omitempty"`
	PrimaryColor string `bson:"primaryColor,omitempty" json:"primaryColor,omitempty"`
	Tagline      string `bson:"tagline,omitempty" json:"tagline,omitempty"`
	Version      int    `bson:"version" json:"version"`
}

// WithDefaults fills unset branding fields.
func (b Branding) WithDefaults() Branding {
	if b.CompanyName == "" {
		b.CompanyName = DefaultCompanyName
	}
	if b.PrimaryColor == "" {
		b.PrimaryColor = DefaultPrimaryColor
	}
	return b
}
