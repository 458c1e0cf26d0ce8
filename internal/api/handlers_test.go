package api

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/kv"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/repository"
	"alcyxob/plan-delivery/internal/service"
	"alcyxob/plan-delivery/internal/storage"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret"

type stubDeliveries struct {
	calls   atomic.Int32
	deliver func(id primitive.ObjectID) (*service.DeliveryResult, error)
	retry   func(id primitive.ObjectID) (*service.DeliveryResult, error)
}

func (s *stubDeliveries) Deliver(_ context.Context, id, _ primitive.ObjectID) (*service.DeliveryResult, error) {
	s.calls.Add(1)
	return s.deliver(id)
}

func (s *stubDeliveries) Retry(_ context.Context, id, _ primitive.ObjectID) (*service.DeliveryResult, error) {
	s.calls.Add(1)
	return s.retry(id)
}

func (s *stubDeliveries) DeliverBatch(ctx context.Context, tenantID primitive.ObjectID, ids []primitive.ObjectID) ([]service.BatchItemResult, error) {
	out := make([]service.BatchItemResult, 0, len(ids))
	for _, id := range ids {
		r, err := s.Deliver(ctx, id, tenantID)
		out = append(out, service.BatchItemResult{AssignmentID: id, Result: r, Err: err})
	}
	return out, nil
}

type stubApprovals struct {
	service.ApprovalService
	decide func(id primitive.ObjectID, status domain.ApprovalStatus, notes string) (*domain.ApprovalWorkflow, error)
	list   func(filter repository.ApprovalFilter) ([]domain.ApprovalWorkflow, error)
}

func (s *stubApprovals) Approve(_ context.Context, id, _, _ primitive.ObjectID, notes string) (*domain.ApprovalWorkflow, error) {
	return s.decide(id, domain.ApprovalApproved, notes)
}

func (s *stubApprovals) Reject(_ context.Context, id, _, _ primitive.ObjectID, notes string) (*domain.ApprovalWorkflow, error) {
	return s.decide(id, domain.ApprovalRejected, notes)
}

func (s *stubApprovals) List(_ context.Context, filter repository.ApprovalFilter) ([]domain.ApprovalWorkflow, error) {
	return s.list(filter)
}

type stubPortal struct{}

func (stubPortal) Resolve(_ context.Context, token string) (*service.PortalView, error) {
	if token != "good-token" {
		return nil, service.ErrPortalLinkNotFound
	}
	return &service.PortalView{PlanName: "Strength Base", PDFURL: "https://files/plan.pdf"}, nil
}

type testServer struct {
	router     *gin.Engine
	tenantID   primitive.ObjectID
	deliveries *stubDeliveries
	approvals  *stubApprovals
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ts := &testServer{
		router:   gin.New(),
		tenantID: primitive.NewObjectID(),
		deliveries: &stubDeliveries{
			deliver: func(id primitive.ObjectID) (*service.DeliveryResult, error) {
				return &service.DeliveryResult{AssignmentID: id, PDFURL: "https://files/" + id.Hex() + ".pdf", PortalLink: "https://portal/abc", DismissedNotification: true}, nil
			},
			retry: func(id primitive.ObjectID) (*service.DeliveryResult, error) {
				return nil, service.ErrNotRetryable
			},
		},
		approvals: &stubApprovals{
			list: func(repository.ApprovalFilter) ([]domain.ApprovalWorkflow, error) { return nil, nil },
		},
	}
	SetupRoutes(ts.router, RouterDeps{
		JWTSecret:      testSecret,
		IdempotencyTTL: time.Hour,
		Idempotency:    kv.NewMemoryStore(),
		Log:            logger.NewNop(),
		Deliveries:     ts.deliveries,
		Approvals:      ts.approvals,
		Portal:         stubPortal{},
	})
	return ts
}

func (ts *testServer) do(t *testing.T, role domain.Role, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := NewToken(testSecret, primitive.NewObjectID(), ts.tenantID, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestDeliverReturnsSnakeCaseResult(t *testing.T) {
	ts := newTestServer(t)
	id := primitive.NewObjectID()

	w := ts.do(t, domain.RoleCoach, http.MethodPost, "/api/v1/plans/assignments/deliver",
		gin.H{"assignment_id": id.Hex(), "tenant_id": ts.tenantID.Hex()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, id.Hex(), body["assignment_id"])
	assert.Equal(t, "https://portal/abc", body["portal_link"])
	assert.Equal(t, true, body["dismissed_notification"])
	assert.Contains(t, body["pdf_url"], id.Hex())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestDeliverRejectsForeignTenant(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, domain.RoleCoach, http.MethodPost, "/api/v1/plans/assignments/deliver",
		gin.H{"assignment_id": primitive.NewObjectID().Hex(), "tenant_id": primitive.NewObjectID().Hex()})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, ts.deliveries.calls.Load())
}

func TestDeliverMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantStep string
	}{
		{"not found", service.ErrAssignmentNotFound, http.StatusNotFound, ""},
		{"already delivered", service.ErrAlreadyDelivered, http.StatusConflict, ""},
		{"in progress", service.ErrDeliveryInProgress, http.StatusConflict, ""},
		{"other tenant", service.ErrAssignmentAccessDenied, http.StatusForbidden, ""},
		{"step failed", &service.StepError{Step: "render", Err: errors.New("disk full")}, http.StatusInternalServerError, "render"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.deliveries.deliver = func(primitive.ObjectID) (*service.DeliveryResult, error) { return nil, tc.err }

			w := ts.do(t, domain.RoleOwner, http.MethodPost, "/api/v1/plans/assignments/deliver",
				gin.H{"assignment_id": primitive.NewObjectID().Hex()})
			assert.Equal(t, tc.wantCode, w.Code)
			body := decode(t, w)
			assert.NotEmpty(t, body["error"])
			if tc.wantStep != "" {
				assert.Equal(t, tc.wantStep, body["step"])
			} else {
				assert.NotContains(t, body, "step")
			}
		})
	}
}

func TestDeliverValidation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, domain.RoleCoach, http.MethodPost, "/api/v1/plans/assignments/deliver", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, domain.RoleCoach, http.MethodPost, "/api/v1/plans/assignments/deliver", gin.H{"assignment_id": "not-an-id"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, "", http.MethodPost, "/api/v1/plans/assignments/deliver", gin.H{"assignment_id": primitive.NewObjectID().Hex()})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, domain.RoleReviewer, http.MethodPost, "/api/v1/plans/assignments/deliver", gin.H{"assignment_id": primitive.NewObjectID().Hex()})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeliverBatchSummarisesOutcomes(t *testing.T) {
	ts := newTestServer(t)
	bad := primitive.NewObjectID()
	ts.deliveries.deliver = func(id primitive.ObjectID) (*service.DeliveryResult, error) {
		if id == bad {
			return nil, &service.StepError{Step: "send", Err: errors.New("provider down")}
		}
		return &service.DeliveryResult{AssignmentID: id, PDFURL: "u", PortalLink: "l"}, nil
	}

	ids := []string{primitive.NewObjectID().Hex(), bad.Hex(), primitive.NewObjectID().Hex()}
	w := ts.do(t, domain.RoleCoach, http.MethodPost, "/api/v1/plans/assignments/deliver", gin.H{"assignment_ids": ids})
	require.Equal(t, http.StatusOK, w.Code)

	var resp BatchDeliverResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Successful)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, bad.Hex(), resp.Results[1].AssignmentID)
	assert.Equal(t, "send", resp.Results[1].Step)
}

func TestRetryOnNonFailedIsConflict(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, domain.RoleCoach, http.MethodPatch, "/api/v1/plans/assignments/deliver",
		gin.H{"assignment_id": primitive.NewObjectID().Hex()})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdempotencyKeyReplaysResponse(t *testing.T) {
	ts := newTestServer(t)
	body := gin.H{"assignment_id": primitive.NewObjectID().Hex()}

	first := ts.do(t, domain.RoleCoach, http.MethodPost, "/api/v1/plans/assignments/deliver", body, idempotencyHeader, "key-1")
	require.Equal(t, http.StatusOK, first.Code)
	second := ts.do(t, domain.RoleCoach, http.MethodPost, "/api/v1/plans/assignments/deliver", body, idempotencyHeader, "key-1")
	require.Equal(t, http.StatusOK, second.Code)

	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.EqualValues(t, 1, ts.deliveries.calls.Load())
}

func TestIdempotencyKeyReleasedOnFailure(t *testing.T) {
	ts := newTestServer(t)
	failing := true
	ts.deliveries.deliver = func(id primitive.ObjectID) (*service.DeliveryResult, error) {
		if failing {
			return nil, &service.StepError{Step: "send", Err: errors.New("timeout")}
		}
		return &service.DeliveryResult{AssignmentID: id}, nil
	}
	body := gin.H{"assignment_id": primitive.NewObjectID().Hex()}

	w := ts.do(t, domain.RoleCoach, http.MethodPost, "/api/v1/plans/assignments/deliver", body, idempotencyHeader, "key-2")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	failing = false
	w = ts.do(t, domain.RoleCoach, http.MethodPost, "/api/v1/plans/assignments/deliver", body, idempotencyHeader, "key-2")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, ts.deliveries.calls.Load())
}

// ctxStore fails like Redis once the request context is gone.
type ctxStore struct {
	kv.Store
	lockTTL time.Duration
}

func (s *ctxStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return s.Store.Get(ctx, key)
}

func (s *ctxStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Set(ctx, key, value, ttl)
}

func (s *ctxStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.lockTTL = ttl
	return s.Store.SetNX(ctx, key, value, ttl)
}

func (s *ctxStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Delete(ctx, key)
}

func TestIdempotencyOutcomeRecordedAfterClientLeaves(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tenantID := primitive.NewObjectID()
	store := &ctxStore{Store: kv.NewMemoryStore()}
	status := http.StatusOK
	var leave context.CancelFunc

	router := gin.New()
	router.POST("/deliver",
		func(c *gin.Context) {
			c.Set(ContextUserIDKey, primitive.NewObjectID())
			c.Set(ContextTenantIDKey, tenantID)
			c.Set(ContextUserRoleKey, domain.RoleCoach)
		},
		Idempotency(store, 24*time.Hour, 4*time.Minute, logger.NewNop()),
		func(c *gin.Context) {
			// the client disconnects while the handler is still working
			leave()
			c.JSON(status, gin.H{"ok": status == http.StatusOK})
		},
	)
	send := func(key string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		leave = cancel
		req := httptest.NewRequest(http.MethodPost, "/deliver", nil).WithContext(ctx)
		req.Header.Set(idempotencyHeader, key)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	storeKey := func(key string) string {
		return "idem:" + tenantID.Hex() + ":POST:/deliver:" + key
	}

	send("ok-key")
	raw, found, err := store.Get(context.Background(), storeKey("ok-key"))
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEqual(t, idempotencyInProgress, raw)
	assert.Equal(t, 4*time.Minute, store.lockTTL)

	status = http.StatusInternalServerError
	send("failed-key")
	_, found, err = store.Get(context.Background(), storeKey("failed-key"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestApproveResponses(t *testing.T) {
	ts := newTestServer(t)
	decided := primitive.NewObjectID()
	missing := primitive.NewObjectID()
	unsynced := primitive.NewObjectID()
	ts.approvals.decide = func(id primitive.ObjectID, status domain.ApprovalStatus, notes string) (*domain.ApprovalWorkflow, error) {
		switch id {
		case decided:
			return nil, service.ErrWorkflowDecided
		case missing:
			return nil, service.ErrWorkflowNotFound
		case unsynced:
			return &domain.ApprovalWorkflow{ID: id, Status: status}, &service.StepError{Step: service.StepVisibility, Err: errors.New("catalog down")}
		}
		return &domain.ApprovalWorkflow{ID: id, Status: status, Notes: notes}, nil
	}

	ok := primitive.NewObjectID()
	w := ts.do(t, domain.RoleReviewer, http.MethodPost, "/api/v1/approvals/"+ok.Hex()+"/approve", gin.H{"notes": "looks good"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "approved", body["status"])
	assert.Equal(t, "looks good", body["notes"])
	assert.Equal(t, true, body["visibilitySynced"])

	w = ts.do(t, domain.RoleReviewer, http.MethodPost, "/api/v1/approvals/"+decided.Hex()+"/reject", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, domain.RoleReviewer, http.MethodPost, "/api/v1/approvals/"+missing.Hex()+"/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, domain.RoleReviewer, http.MethodPost, "/api/v1/approvals/"+unsynced.Hex()+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["visibilitySynced"])

	w = ts.do(t, domain.RoleCoach, http.MethodPost, "/api/v1/approvals/"+ok.Hex()+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDecisionNotesFromChunkedBody(t *testing.T) {
	ts := newTestServer(t)
	ts.approvals.decide = func(id primitive.ObjectID, status domain.ApprovalStatus, notes string) (*domain.ApprovalWorkflow, error) {
		return &domain.ApprovalWorkflow{ID: id, Status: status, Notes: notes}, nil
	}

	// A plain io.Reader leaves ContentLength unknown, as with chunked uploads.
	body := io.MultiReader(strings.NewReader(`{"notes":"missing cues"}`))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/approvals/"+primitive.NewObjectID().Hex()+"/reject", body)
	require.EqualValues(t, -1, req.ContentLength)
	req.Header.Set("Content-Type", "application/json")
	token, err := NewToken(testSecret, primitive.NewObjectID(), ts.tenantID, domain.RoleReviewer, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "missing cues", decode(t, w)["notes"])
}

func TestListApprovalsDefaultsToPending(t *testing.T) {
	ts := newTestServer(t)
	var got repository.ApprovalFilter
	ts.approvals.list = func(f repository.ApprovalFilter) ([]domain.ApprovalWorkflow, error) {
		got = f
		return nil, nil
	}

	w := ts.do(t, domain.RoleReviewer, http.MethodGet, "/api/v1/approvals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
	assert.Equal(t, domain.ApprovalPending, got.Status)
	assert.Equal(t, ts.tenantID, got.TenantID)

	w = ts.do(t, domain.RoleReviewer, http.MethodGet, "/api/v1/approvals?status=all&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, got.Status)
	assert.EqualValues(t, 5, got.Limit)
}

func TestPortalIsPublic(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "", http.MethodGet, "/api/v1/portal/good-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Strength Base", decode(t, w)["planName"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = ts.do(t, "", http.MethodGet, "/api/v1/portal/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	ts := newTestServer(t)
	token, err := NewToken(testSecret, primitive.NewObjectID(), ts.tenantID, domain.RoleOwner, -time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token has expired", decode(t, w)["error"])
}

func TestLocalFilesServedWhenMounted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	files := storage.NewMemoryStorage("http://localhost:8080/files")
	require.NoError(t, files.PutObject(context.Background(), "plans/p1/v1.pdf", []byte("%PDF-1.3"), "application/pdf"))

	router := gin.New()
	SetupRoutes(router, RouterDeps{JWTSecret: testSecret, Log: logger.NewNop(), LocalFiles: files, Portal: stubPortal{}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/plans%2Fp1%2Fv1.pdf?expires=900", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.3", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/plans/missing.pdf", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	ts := newTestServer(t)
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/plans%2Fp1%2Fv1.pdf", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
