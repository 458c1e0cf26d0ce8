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

// mongoClientRepository implements repository.ClientRepository
type mongoClientRepository struct {
	collection *mongo.Collection
}

func NewMongoClientRepository(db *mongo.Database) repository.ClientRepository {
	return &mongoClientRepository{collection: db.Collection(clientCollectionName)}
}

func (r *mongoClientRepository) Create(ctx context.Context, client *domain.Client) (primitive.ObjectID, error) {
	if client.TenantID.IsZero() {
		return primitive.NilObjectID, errors.New("client requires tenantId")
	}
	client.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, client); err != nil {
		if isDuplicateKey(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	return client.ID, nil
}

func (r *mongoClientRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Client, error) {
	var client domain.Client
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&client)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &client, nil
}

// EnsureClientIndexes keeps client codes unique per tenant.
func EnsureClientIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "clientCode", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"clientCode": bson.M{"$type": "string"}}),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// mongoTenantRepository implements repository.TenantRepository
type mongoTenantRepository struct {
	collection *mongo.Collection
}

func NewMongoTenantRepository(db *mongo.Database) repository.TenantRepository {
	return &mongoTenantRepository{collection: db.Collection(tenantCollectionName)}
}

func (r *mongoTenantRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&tenant)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// UpdateBranding replaces the branding and bumps its version so cached
// renders are not reused.
func (r *mongoTenantRepository) UpdateBranding(ctx context.Context, id primitive.ObjectID, b domain.Branding) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set": bson.M{
				"branding.companyName":  b.CompanyName,
				"branding.primaryColor": b.PrimaryColor,
				"branding.tagline":      b.Tagline,
				"updatedAt":             time.Now().UTC(),
			},
			"$inc": bson.M{"branding.version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&tenant)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}
