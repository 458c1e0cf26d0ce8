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

// --- Portal links ---

type mongoPortalLinkRepository struct {
	collection *mongo.Collection
}

func NewMongoPortalLinkRepository(db *mongo.Database) repository.PortalLinkRepository {
	return &mongoPortalLinkRepository{collection: db.Collection(portalLinkCollectionName)}
}

// Upsert creates or refreshes the single link for the assignment.
func (r *mongoPortalLinkRepository) Upsert(ctx context.Context, link *domain.PortalLink) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"tenantId":  link.TenantID,
			"clientId":  link.ClientID,
			"planId":    link.PlanID,
			"token":     link.Token,
			"url":       link.URL,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"assignmentId": link.AssignmentID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *mongoPortalLinkRepository) GetByToken(ctx context.Context, token string) (*domain.PortalLink, error) {
	var link domain.PortalLink
	err := r.collection.FindOne(ctx, bson.M{"token": token}).Decode(&link)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &link, nil
}

func EnsurePortalLinkIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "assignmentId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// --- Check-in schedules ---

type mongoCheckInRepository struct {
	collection *mongo.Collection
}

func NewMongoCheckInRepository(db *mongo.Database) repository.CheckInRepository {
	return &mongoCheckInRepository{collection: db.Collection(checkInCollectionName)}
}

// UpsertSchedule is idempotent per (assignmentId, round): re-running it never
// duplicates rounds and never resets a round's status.
func (r *mongoCheckInRepository) UpsertSchedule(ctx context.Context, rounds []domain.CheckIn) (int, error) {
	if len(rounds) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, 0, len(rounds))
	for _, c := range rounds {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"assignmentId": c.AssignmentID, "round": c.Round}).
			SetUpdate(bson.M{
				"$set": bson.M{"dueDate": c.DueDate},
				"$setOnInsert": bson.M{
					"tenantId":  c.TenantID,
					"clientId":  c.ClientID,
					"status":    c.Status,
					"createdAt": c.CreatedAt,
				},
			}).
			SetUpsert(true))
	}
	if _, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return 0, err
	}
	count, err := r.collection.CountDocuments(ctx, bson.M{"assignmentId": rounds[0].AssignmentID})
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *mongoCheckInRepository) ListByAssignment(ctx context.Context, assignmentID primitive.ObjectID) ([]domain.CheckIn, error) {
	cursor, err := r.collection.Find(ctx,
		bson.M{"assignmentId": assignmentID},
		options.Find().SetSort(bson.D{{Key: "round", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	rounds := []domain.CheckIn{}
	if err = cursor.All(ctx, &rounds); err != nil {
		return nil, err
	}
	return rounds, nil
}

func EnsureCheckInIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "assignmentId", Value: 1}, {Key: "round", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "dueDate", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// --- Persistent notifications ---

type mongoNotificationRepository struct {
	collection *mongo.Collection
}

func NewMongoNotificationRepository(db *mongo.Database) repository.NotificationRepository {
	return &mongoNotificationRepository{collection: db.Collection(notificationCollectionName)}
}

func (r *mongoNotificationRepository) Create(ctx context.Context, n *domain.Notification) (primitive.ObjectID, error) {
	n.ID = primitive.NewObjectID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, n); err != nil {
		return primitive.NilObjectID, err
	}
	return n.ID, nil
}

func (r *mongoNotificationRepository) Dismiss(ctx context.Context, tenantID, relatedEntityID primitive.ObjectID, notificationType string, at time.Time) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{
			"tenantId":        tenantID,
			"relatedEntityId": relatedEntityID,
			"type":            notificationType,
			"isDismissed":     false,
		},
		bson.M{"$set": bson.M{"isDismissed": true, "dismissedAt": at}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func EnsureNotificationIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "tenantId", Value: 1},
				{Key: "relatedEntityId", Value: 1},
				{Key: "type", Value: 1},
				{Key: "isDismissed", Value: 1},
			},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
