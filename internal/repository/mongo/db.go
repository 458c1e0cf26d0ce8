package mongo

import (
	"alcyxob/plan-delivery/internal/logger"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Default connection timeout
const defaultTimeout = 10 * time.Second

// Collection names.
const (
	assignmentCollectionName   = "plan_assignments"
	planCollectionName         = "plans"
	planVersionCollectionName  = "plan_versions"
	clientCollectionName       = "clients"
	tenantCollectionName       = "tenants"
	artifactCollectionName     = "plan_artifacts"
	portalLinkCollectionName   = "portal_links"
	checkInCollectionName      = "checkin_schedules"
	notificationCollectionName = "persistent_notifications"
	approvalCollectionName     = "approval_workflows"
	exerciseCollectionName     = "exercises"
	nutritionCollectionName    = "nutrition_plans"
	workoutCollectionName      = "workouts"
)

// ConnectDB establishes a connection to MongoDB using the provided URI and
// verifies it with a ping against the primary.
func ConnectDB(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	if err = client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}

	return client, nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

// EnsureIndexes creates every collection's indexes. Failures are logged per
// collection and joined into the returned error.
func EnsureIndexes(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	steps := []struct {
		name   string
		ensure func(context.Context, *mongo.Collection) error
	}{
		{assignmentCollectionName, EnsureAssignmentIndexes},
		{planVersionCollectionName, EnsurePlanVersionIndexes},
		{clientCollectionName, EnsureClientIndexes},
		{artifactCollectionName, EnsureArtifactIndexes},
		{portalLinkCollectionName, EnsurePortalLinkIndexes},
		{checkInCollectionName, EnsureCheckInIndexes},
		{notificationCollectionName, EnsureNotificationIndexes},
		{approvalCollectionName, EnsureApprovalIndexes},
		{exerciseCollectionName, EnsureCatalogIndexes},
		{nutritionCollectionName, EnsureCatalogIndexes},
		{workoutCollectionName, EnsureCatalogIndexes},
	}

	var errs []error
	for _, s := range steps {
		if err := s.ensure(ctx, db.Collection(s.name)); err != nil {
			log.Warn("Failed to create indexes", "collection", s.name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
