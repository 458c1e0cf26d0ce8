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

const (
	defaultApprovalListLimit int64 = 50
	defaultAuditLimit        int64 = 100
)

// mongoApprovalRepository implements repository.ApprovalRepository
type mongoApprovalRepository struct {
	collection *mongo.Collection
}

func NewMongoApprovalRepository(db *mongo.Database) repository.ApprovalRepository {
	return &mongoApprovalRepository{collection: db.Collection(approvalCollectionName)}
}

func (r *mongoApprovalRepository) Create(ctx context.Context, w *domain.ApprovalWorkflow) (primitive.ObjectID, error) {
	if w.TenantID.IsZero() || w.EntityID.IsZero() || !w.EntityType.Valid() {
		return primitive.NilObjectID, errors.New("approval requires tenantId, entityId and a known entityType")
	}
	w.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	w.Status = domain.ApprovalPending
	w.ReviewedBy = nil
	w.ReviewedAt = nil

	if _, err := r.collection.InsertOne(ctx, w); err != nil {
		if isDuplicateKey(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	return w.ID, nil
}

func (r *mongoApprovalRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ApprovalWorkflow, error) {
	var w domain.ApprovalWorkflow
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&w)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

// List returns the review queue, newest submissions first.
func (r *mongoApprovalRepository) List(ctx context.Context, f repository.ApprovalFilter) ([]domain.ApprovalWorkflow, error) {
	filter := bson.M{"tenantId": f.TenantID}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.EntityType != "" {
		filter["entityType"] = f.EntityType
	}
	if f.SubmittedBy != nil {
		filter["submittedBy"] = *f.SubmittedBy
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultApprovalListLimit
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit))
}

// Audit returns decided workflows, most recently reviewed first.
func (r *mongoApprovalRepository) Audit(ctx context.Context, f repository.AuditFilter) ([]domain.ApprovalWorkflow, error) {
	filter := bson.M{"tenantId": f.TenantID}
	if f.Status != "" {
		filter["status"] = f.Status
	} else {
		filter["status"] = bson.M{"$in": bson.A{domain.ApprovalApproved, domain.ApprovalRejected}}
	}
	if f.EntityType != "" {
		filter["entityType"] = f.EntityType
	}
	if f.EntityID != nil {
		filter["entityId"] = *f.EntityID
	}
	if f.ReviewedBy != nil {
		filter["reviewedBy"] = *f.ReviewedBy
	}
	if f.From != nil || f.To != nil {
		reviewed := bson.M{}
		if f.From != nil {
			reviewed["$gte"] = *f.From
		}
		if f.To != nil {
			reviewed["$lte"] = *f.To
		}
		filter["reviewedAt"] = reviewed
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "reviewedAt", Value: -1}}).SetLimit(limit))
}

// Decide writes status, reviewer and review time in one update that only
// matches a pending workflow.
func (r *mongoApprovalRepository) Decide(ctx context.Context, d repository.Decision) (*domain.ApprovalWorkflow, error) {
	filter := bson.M{
		"_id":      d.WorkflowID,
		"tenantId": d.TenantID,
		"status":   domain.ApprovalPending,
	}
	update := bson.M{"$set": bson.M{
		"status":     d.Status,
		"reviewedBy": d.ReviewedBy,
		"reviewedAt": d.ReviewedAt,
		"notes":      d.Notes,
		"updatedAt":  d.ReviewedAt,
	}}

	var w domain.ApprovalWorkflow
	err := r.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&w)
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	if _, getErr := r.GetByID(ctx, d.WorkflowID); getErr != nil {
		return nil, getErr
	}
	return nil, repository.ErrConflict
}

func (r *mongoApprovalRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.ApprovalWorkflow, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	workflows := []domain.ApprovalWorkflow{}
	if err = cursor.All(ctx, &workflows); err != nil {
		return nil, err
	}
	return workflows, nil
}

// EnsureApprovalIndexes also enforces one pending workflow per entity.
func EnsureApprovalIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "reviewedAt", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys: bson.D{{Key: "entityType", Value: 1}, {Key: "entityId", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": domain.ApprovalPending}),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
