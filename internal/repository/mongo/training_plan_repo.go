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

// mongoTrainingPlanRepository implements repository.TrainingPlanRepository.
// Plans live in one collection, their immutable versions in another.
type mongoTrainingPlanRepository struct {
	plans    *mongo.Collection
	versions *mongo.Collection
}

// NewMongoTrainingPlanRepository creates a new plan repository.
func NewMongoTrainingPlanRepository(db *mongo.Database) repository.TrainingPlanRepository {
	return &mongoTrainingPlanRepository{
		plans:    db.Collection(planCollectionName),
		versions: db.Collection(planVersionCollectionName),
	}
}

// Create inserts the plan together with its first version.
func (r *mongoTrainingPlanRepository) Create(ctx context.Context, plan *domain.Plan, content domain.PlanContent) (primitive.ObjectID, error) {
	if plan.TenantID.IsZero() || plan.Name == "" {
		return primitive.NilObjectID, errors.New("plan requires tenantId and name")
	}
	now := time.Now().UTC()
	plan.ID = primitive.NewObjectID()
	plan.CurrentVersion = 1
	plan.CreatedAt = now
	plan.UpdatedAt = now

	if _, err := r.plans.InsertOne(ctx, plan); err != nil {
		return primitive.NilObjectID, err
	}
	version := &domain.PlanVersion{
		ID:        primitive.NewObjectID(),
		TenantID:  plan.TenantID,
		PlanID:    plan.ID,
		Version:   1,
		Content:   content,
		CreatedAt: now,
	}
	if _, err := r.versions.InsertOne(ctx, version); err != nil {
		return primitive.NilObjectID, err
	}
	return plan.ID, nil
}

// GetByID retrieves a plan by its ID.
func (r *mongoTrainingPlanRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Plan, error) {
	var plan domain.Plan
	err := r.plans.FindOne(ctx, bson.M{"_id": id}).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *mongoTrainingPlanRepository) GetVersion(ctx context.Context, planID primitive.ObjectID, version int) (*domain.PlanVersion, error) {
	var v domain.PlanVersion
	err := r.versions.FindOne(ctx, bson.M{"planId": planID, "version": version}).Decode(&v)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// AddVersion bumps the plan's current version and stores the new snapshot.
func (r *mongoTrainingPlanRepository) AddVersion(ctx context.Context, planID primitive.ObjectID, content domain.PlanContent) (*domain.PlanVersion, error) {
	now := time.Now().UTC()
	var plan domain.Plan
	err := r.plans.FindOneAndUpdate(ctx,
		bson.M{"_id": planID},
		bson.M{"$inc": bson.M{"currentVersion": 1}, "$set": bson.M{"updatedAt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	v := &domain.PlanVersion{
		ID:        primitive.NewObjectID(),
		TenantID:  plan.TenantID,
		PlanID:    plan.ID,
		Version:   plan.CurrentVersion,
		Content:   content,
		CreatedAt: now,
	}
	if _, err := r.versions.InsertOne(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// EnsurePlanVersionIndexes makes (planId, version) unique.
func EnsurePlanVersionIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "planId", Value: 1}, {Key: "version", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
