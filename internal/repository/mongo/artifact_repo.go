package mongo

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoArtifactRepository implements repository.ArtifactRepository
type mongoArtifactRepository struct {
	collection *mongo.Collection
}

// NewMongoArtifactRepository creates a repository for rendered PDF metadata.
func NewMongoArtifactRepository(db *mongo.Database) repository.ArtifactRepository {
	return &mongoArtifactRepository{collection: db.Collection(artifactCollectionName)}
}

// Create stores artifact metadata. A concurrent render of the same
// (plan, version, branding) yields ErrDuplicate; callers re-read.
func (r *mongoArtifactRepository) Create(ctx context.Context, artifact *domain.PlanArtifact) (primitive.ObjectID, error) {
	if artifact.PlanID.IsZero() || artifact.ObjectKey == "" {
		return primitive.NilObjectID, errors.New("artifact requires planId and objectKey")
	}
	artifact.ID = primitive.NewObjectID()
	if artifact.RenderedAt.IsZero() {
		artifact.RenderedAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, artifact); err != nil {
		if isDuplicateKey(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	return artifact.ID, nil
}

func (r *mongoArtifactRepository) Find(ctx context.Context, planID primitive.ObjectID, planVersion, brandingVersion int) (*domain.PlanArtifact, error) {
	var artifact domain.PlanArtifact
	filter := bson.M{"planId": planID, "planVersion": planVersion, "brandingVersion": brandingVersion}
	err := r.collection.FindOne(ctx, filter).Decode(&artifact)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &artifact, nil
}

// EnsureArtifactIndexes makes the render cache identity unique.
func EnsureArtifactIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "planId", Value: 1},
				{Key: "planVersion", Value: 1},
				{Key: "brandingVersion", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
