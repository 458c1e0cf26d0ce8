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

const defaultListLimit int64 = 100

// mongoAssignmentRepository implements repository.PlanAssignmentRepository
type mongoAssignmentRepository struct {
	collection *mongo.Collection
}

// NewMongoAssignmentRepository creates a new plan assignment repository backed by MongoDB.
func NewMongoAssignmentRepository(db *mongo.Database) repository.PlanAssignmentRepository {
	return &mongoAssignmentRepository{
		collection: db.Collection(assignmentCollectionName),
	}
}

// Create inserts a new assignment with pending delivery.
func (r *mongoAssignmentRepository) Create(ctx context.Context, a *domain.PlanAssignment) (primitive.ObjectID, error) {
	if a.TenantID.IsZero() || a.ClientID.IsZero() || a.PlanID.IsZero() {
		return primitive.NilObjectID, errors.New("assignment requires tenantId, clientId and planId")
	}

	a.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = domain.AssignmentActive
	}
	a.DeliveryStatus = domain.DeliveryPending
	a.DeliveredAt = nil

	result, err := r.collection.InsertOne(ctx, a)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted assignment ID")
	}
	return insertedID, nil
}

// GetByID retrieves an assignment by its ID.
func (r *mongoAssignmentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.PlanAssignment, error) {
	var a domain.PlanAssignment
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// List returns a tenant's assignments, newest first.
func (r *mongoAssignmentRepository) List(ctx context.Context, f repository.AssignmentFilter) ([]domain.PlanAssignment, error) {
	filter := bson.M{"tenantId": f.TenantID}
	if f.ClientID != nil {
		filter["clientId"] = *f.ClientID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.DeliveryStatus != "" {
		filter["deliveryStatus"] = f.DeliveryStatus
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	assignments := []domain.PlanAssignment{}
	if err = cursor.All(ctx, &assignments); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *mongoAssignmentRepository) UpdateStatus(ctx context.Context, id, tenantID primitive.ObjectID, status domain.AssignmentStatus) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "tenantId": tenantID},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ClaimDelivery sets the lease in a single conditional update, so of two
// concurrent callers at most one matches.
func (r *mongoAssignmentRepository) ClaimDelivery(ctx context.Context, req repository.ClaimRequest) (*domain.PlanAssignment, error) {
	filter := bson.M{
		"_id":            req.AssignmentID,
		"tenantId":       req.TenantID,
		"status":         domain.AssignmentActive,
		"deliveryStatus": bson.M{"$in": req.AllowedFrom},
		"$or": bson.A{
			bson.M{"delivery.leaseId": bson.M{"$in": bson.A{nil, ""}}},
			bson.M{"delivery.leaseExpiresAt": bson.M{"$lte": req.Now}},
		},
	}
	set := bson.M{
		"delivery.leaseId":        req.LeaseID,
		"delivery.leaseExpiresAt": req.ExpiresAt,
		"delivery.lastAttemptAt":  req.Now,
		"updatedAt":               req.Now,
	}
	if req.ResetTo != "" {
		set["deliveryStatus"] = req.ResetTo
		set["deliveredAt"] = nil
	}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"delivery.attempts": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var a domain.PlanAssignment
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&a)
	if err == nil {
		return &a, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": req.AssignmentID}, options.Count().SetLimit(1))
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrConflict
}

func (r *mongoAssignmentRepository) ExtendLease(ctx context.Context, id primitive.ObjectID, leaseID string, now, expiresAt time.Time) error {
	filter := bson.M{
		"_id":                     id,
		"delivery.leaseId":        leaseID,
		"delivery.leaseExpiresAt": bson.M{"$gt": now},
	}
	update := bson.M{"$set": bson.M{"delivery.leaseExpiresAt": expiresAt, "updatedAt": now}}
	return r.fencedUpdate(ctx, filter, update)
}

// SaveProgress records completed steps. Lease and attempt bookkeeping is left alone.
func (r *mongoAssignmentRepository) SaveProgress(ctx context.Context, id primitive.ObjectID, leaseID string, p domain.DeliveryProgress) error {
	return r.fencedUpdate(ctx, bson.M{"_id": id, "delivery.leaseId": leaseID}, bson.M{"$set": progressFields(p)})
}

// MarkSent moves pending -> sent together with the send record.
func (r *mongoAssignmentRepository) MarkSent(ctx context.Context, id primitive.ObjectID, leaseID string, p domain.DeliveryProgress) error {
	set := progressFields(p)
	set["deliveryStatus"] = domain.DeliverySent
	return r.fencedUpdate(ctx,
		bson.M{"_id": id, "delivery.leaseId": leaseID, "deliveryStatus": domain.DeliveryPending},
		bson.M{"$set": set},
	)
}

// MarkDelivered requires a recorded render and send, then releases the lease.
func (r *mongoAssignmentRepository) MarkDelivered(ctx context.Context, id primitive.ObjectID, leaseID string, deliveredAt time.Time) error {
	filter := bson.M{
		"_id":                   id,
		"delivery.leaseId":      leaseID,
		"deliveryStatus":        domain.DeliverySent,
		"delivery.sentAt":       bson.M{"$ne": nil},
		"delivery.pdfObjectKey": bson.M{"$nin": bson.A{nil, ""}},
	}
	update := bson.M{
		"$set": bson.M{
			"deliveryStatus": domain.DeliveryDelivered,
			"deliveredAt":    deliveredAt,
			"updatedAt":      deliveredAt,
		},
		"$unset": bson.M{
			"delivery.leaseId":        "",
			"delivery.leaseExpiresAt": "",
			"delivery.failedStep":     "",
			"delivery.lastError":      "",
		},
	}
	return r.fencedUpdate(ctx, filter, update)
}

// MarkFailed records the failing step and releases the lease.
func (r *mongoAssignmentRepository) MarkFailed(ctx context.Context, id primitive.ObjectID, leaseID string, step domain.DeliveryStep, message string, at time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"deliveryStatus":      domain.DeliveryFailed,
			"deliveredAt":         nil,
			"delivery.failedStep": step,
			"delivery.lastError":  message,
			"updatedAt":           at,
		},
		"$unset": bson.M{
			"delivery.leaseId":        "",
			"delivery.leaseExpiresAt": "",
		},
	}
	return r.fencedUpdate(ctx, bson.M{"_id": id, "delivery.leaseId": leaseID}, update)
}

// fencedUpdate returns ErrConflict when the filter (lease, expected status) no longer matches.
func (r *mongoAssignmentRepository) fencedUpdate(ctx context.Context, filter, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrConflict
	}
	return nil
}

func progressFields(p domain.DeliveryProgress) bson.M {
	return bson.M{
		"delivery.pdfObjectKey":          p.PDFObjectKey,
		"delivery.pdfUrl":                p.PDFURL,
		"delivery.renderedAt":            p.RenderedAt,
		"delivery.portalToken":           p.PortalToken,
		"delivery.portalLink":            p.PortalLink,
		"delivery.sentAt":                p.SentAt,
		"delivery.messageIds":            p.MessageIDs,
		"delivery.portalLinkedAt":        p.PortalLinkedAt,
		"delivery.checkInsScheduledAt":   p.CheckInsScheduledAt,
		"delivery.checkInCount":          p.CheckInCount,
		"delivery.notificationClearedAt": p.NotificationClearedAt,
		"delivery.dismissedNotification": p.DismissedNotification,
		"updatedAt":                      time.Now().UTC(),
	}
}

// EnsureAssignmentIndexes creates necessary indexes for the plan_assignments collection.
func EnsureAssignmentIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// Tenant dashboards, newest first
			Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "clientId", Value: 1}},
			Options: options.Index(),
		},
		{
			// Failed-delivery queues
			Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "deliveryStatus", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
