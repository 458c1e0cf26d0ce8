package render

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/kv"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/repository"
	"alcyxob/plan-delivery/internal/storage"
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeArtifacts struct {
	mu    sync.Mutex
	items []domain.PlanArtifact
}

func (f *fakeArtifacts) Create(_ context.Context, a *domain.PlanArtifact) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.PlanID == a.PlanID && it.PlanVersion == a.PlanVersion && it.BrandingVersion == a.BrandingVersion {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	a.ID = primitive.NewObjectID()
	f.items = append(f.items, *a)
	return a.ID, nil
}

func (f *fakeArtifacts) Find(_ context.Context, planID primitive.ObjectID, planVersion, brandingVersion int) (*domain.PlanArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.PlanID == planID && it.PlanVersion == planVersion && it.BrandingVersion == brandingVersion {
			cp := it
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

type failingStorage struct {
	*storage.MemoryStorage
}

func (failingStorage) PutObject(context.Context, string, []byte, string) error {
	return errors.New("bucket unavailable")
}

func samplePlan() Request {
	tenant := primitive.NewObjectID()
	plan := &domain.Plan{
		ID:             primitive.NewObjectID(),
		TenantID:       tenant,
		Name:           "Hypertrophy Block A",
		PlanType:       domain.PlanBundle,
		CurrentVersion: 2,
	}
	version := &domain.PlanVersion{
		PlanID:  plan.ID,
		Version: 2,
		Content: domain.PlanContent{
			Description:     "Twelve weeks of progressive overload.",
			DurationWeeks:   12,
			WorkoutsPerWeek: 3,
			Workouts: []domain.PlanWorkout{{
				Name:      "Upper Body",
				DayOfWeek: 1,
				Exercises: []domain.PlanExercise{
					{Name: "Bench Press", Sets: 4, Reps: "6-8", Rest: "2m"},
					{Name: "Pull-up", Sets: 3, Reps: "AMRAP"},
				},
			}},
			Meals: []domain.PlanMeal{{
				Name:  "Breakfast",
				Time:  "07:30",
				Items: []string{"Oats", "Greek yogurt", "Berries"},
			}},
			DailyCalories: 2600,
			Macros:        &domain.MacroSplit{ProteinG: 180, CarbsG: 300, FatG: 70},
			Notes:         "Deload on week 7.",
		},
		CreatedAt: time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC),
	}
	return Request{Plan: plan, Version: version, Branding: domain.Branding{CompanyName: "Iron Studio", Version: 4}}
}

func TestBuildPDFIsDeterministic(t *testing.T) {
	req := samplePlan()

	first, err := BuildPDF(req)
	require.NoError(t, err)
	second, err := BuildPDF(req)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(first, []byte("%PDF-")))
	assert.Equal(t, first, second)
}

func TestBuildPDFRejectsBadColor(t *testing.T) {
	req := samplePlan()
	req.Branding.PrimaryColor = "green"

	_, err := BuildPDF(req)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
}

func TestBuildPDFRejectsMismatchedVersion(t *testing.T) {
	req := samplePlan()
	req.Version.PlanID = primitive.NewObjectID()

	_, err := BuildPDF(req)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "layout", rerr.Op)
}

func TestObjectKeyVariesWithBranding(t *testing.T) {
	req := samplePlan()
	a := ObjectKey(req)
	req.Branding.Version++
	assert.NotEqual(t, a, ObjectKey(req))
	assert.Contains(t, a, "/v2-b4.pdf")
}

func TestPlanRendererCachesByVersionAndBranding(t *testing.T) {
	ctx := context.Background()
	files := storage.NewMemoryStorage("https://files.test")
	r := NewPlanRenderer(files, &fakeArtifacts{}, kv.NewMemoryStore(), logger.NewNop(), Options{})
	req := samplePlan()

	first, err := r.Render(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.NotEmpty(t, first.Checksum)
	assert.Contains(t, first.URL, "https://files.test/")

	second, err := r.Render(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ObjectKey, second.ObjectKey)
	assert.Equal(t, 1, files.Puts())

	req.Branding.Version++
	third, err := r.Render(ctx, req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, files.Puts())
}

func TestPlanRendererFallsBackToArtifactIndex(t *testing.T) {
	ctx := context.Background()
	files := storage.NewMemoryStorage("https://files.test")
	artifacts := &fakeArtifacts{}
	req := samplePlan()

	warm := NewPlanRenderer(files, artifacts, kv.NewMemoryStore(), logger.NewNop(), Options{})
	_, err := warm.Render(ctx, req)
	require.NoError(t, err)

	// fresh KV, same index and bucket
	cold := NewPlanRenderer(files, artifacts, kv.NewMemoryStore(), logger.NewNop(), Options{})
	res, err := cold.Render(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 1, files.Puts())
}

func TestPlanRendererUploadFailureIsRenderError(t *testing.T) {
	files := failingStorage{storage.NewMemoryStorage("https://files.test")}
	r := NewPlanRenderer(files, &fakeArtifacts{}, kv.NewMemoryStore(), logger.NewNop(), Options{})

	_, err := r.Render(context.Background(), samplePlan())
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "upload", rerr.Op)
}
