package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlanArtifact stores metadata about a rendered plan PDF.
// The actual file resides in S3 under ObjectKey.
type PlanArtifact struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID        primitive.ObjectID `bson:"tenantId" json:"tenantId"`
	PlanID          primitive.ObjectID `bson:"planId" json:"planId"`
	PlanVersion     int                `bson:"planVersion" json:"planVersion"`
	BrandingVersion int                `bson:"brandingVersion" json:"brandingVersion"`
	ObjectKey       string             `bson:"objectKey" json:"-"`
	ContentType     string             `bson:"contentType" json:"contentType"`
	Size            int64              `bson:"size" json:"size"`
	Checksum        string             `bson:"checksum" json:"checksum"` // hex sha256 of the PDF bytes
	RenderedAt      time.Time          `bson:"renderedAt" json:"renderedAt"`
}
