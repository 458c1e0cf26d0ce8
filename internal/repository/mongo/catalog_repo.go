package mongo

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoCatalogRepository implements repository.CatalogRepository over the
// exercise, nutrition and workout library collections.
type mongoCatalogRepository struct {
	collections map[domain.EntityType]*mongo.Collection
}

func NewMongoCatalogRepository(db *mongo.Database) repository.CatalogRepository {
	return &mongoCatalogRepository{
		collections: map[domain.EntityType]*mongo.Collection{
			domain.EntityExercise:  db.Collection(exerciseCollectionName),
			domain.EntityNutrition: db.Collection(nutritionCollectionName),
			domain.EntityWorkout:   db.Collection(workoutCollectionName),
		},
	}
}

func (r *mongoCatalogRepository) collection(entityType domain.EntityType) (*mongo.Collection, error) {
	c, ok := r.collections[entityType]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
	return c, nil
}

func (r *mongoCatalogRepository) Exists(ctx context.Context, entityType domain.EntityType, id, tenantID primitive.ObjectID) (bool, error) {
	c, err := r.collection(entityType)
	if err != nil {
		return false, err
	}
	n, err := c.CountDocuments(ctx, bson.M{"_id": id, "tenantId": tenantID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetReviewStatus flips catalog visibility. Nutrition plans additionally
// carry isActive, which follows approval.
func (r *mongoCatalogRepository) SetReviewStatus(ctx context.Context, entityType domain.EntityType, id, tenantID primitive.ObjectID, status domain.ReviewStatus) error {
	c, err := r.collection(entityType)
	if err != nil {
		return err
	}
	set := bson.M{"status": status, "updatedAt": time.Now().UTC()}
	if entityType == domain.EntityNutrition {
		set["isActive"] = status == domain.ReviewApproved
	}
	result, err := c.UpdateOne(ctx, bson.M{"_id": id, "tenantId": tenantID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListActive returns only approved entries.
func (r *mongoCatalogRepository) ListActive(ctx context.Context, entityType domain.EntityType, tenantID primitive.ObjectID, limit int64) ([]domain.CatalogEntry, error) {
	c, err := r.collection(entityType)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"tenantId": tenantID, "status": domain.ReviewApproved}
	if entityType == domain.EntityNutrition {
		filter["isActive"] = true
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetLimit(limit).
		SetProjection(bson.M{"_id": 1, "tenantId": 1, "name": 1, "status": 1, "updatedAt": 1})

	cursor, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := []domain.CatalogEntry{}
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].EntityType = entityType
	}
	return entries, nil
}

// CreateExercise inserts a library exercise. New entries start in review.
func (r *mongoCatalogRepository) CreateExercise(ctx context.Context, exercise *domain.Exercise) (primitive.ObjectID, error) {
	if exercise.TenantID.IsZero() || exercise.Name == "" {
		return primitive.NilObjectID, errors.New("exercise requires tenantId and name")
	}
	exercise.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	exercise.CreatedAt = now
	exercise.UpdatedAt = now
	if exercise.ReviewStatus == "" {
		exercise.ReviewStatus = domain.ReviewPending
	}
	if _, err := r.collections[domain.EntityExercise].InsertOne(ctx, exercise); err != nil {
		return primitive.NilObjectID, err
	}
	return exercise.ID, nil
}

// UpdateExercise applies only the allow-listed fields present in patch.
func (r *mongoCatalogRepository) UpdateExercise(ctx context.Context, id, tenantID primitive.ObjectID, patch repository.ExercisePatch) (*domain.Exercise, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	fields := map[string]*string{
		"name":             patch.Name,
		"description":      patch.Description,
		"muscleGroup":      patch.MuscleGroup,
		"executionTechnic": patch.ExecutionTechnic,
		"difficulty":       patch.Difficulty,
		"videoUrl":         patch.VideoURL,
	}
	for key, v := range fields {
		if v != nil {
			set[key] = *v
		}
	}

	var exercise domain.Exercise
	err := r.collections[domain.EntityExercise].FindOneAndUpdate(ctx,
		bson.M{"_id": id, "tenantId": tenantID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&exercise)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &exercise, nil
}

// EnsureCatalogIndexes serves active catalog listings.
func EnsureCatalogIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "status", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
