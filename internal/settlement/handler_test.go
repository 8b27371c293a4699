package settlement

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/clockpay/backend/internal/auth"
	"github.com/clockpay/backend/internal/middleware"
	"github.com/clockpay/backend/internal/models"
)

func schemasDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "schemas")
}

func newTestHandler(t *testing.T, f *fixture) *Handler {
	t.Helper()
	v, err := NewRequestValidator(schemasDir(t))
	if err != nil {
		t.Fatalf("NewRequestValidator: %v", err)
	}
	return &Handler{
		Service:   f.svc,
		Lister:    &fixtureLister{f: f},
		Sessions:  &fixtureSessions{f: f},
		Validator: v,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

type fixtureSessions struct {
	f *fixture
}

func (s *fixtureSessions) ListApprovedByWorker(_ context.Context, workerID uuid.UUID) ([]*models.WorkSession, error) {
	var out []*models.WorkSession
	for _, sess := range s.f.store.sessions {
		if sess.WorkerID == workerID && sess.Status == models.SessionStatusApproved {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *fixtureSessions) ListByPaymentRequest(_ context.Context, paymentRequestID uuid.UUID) ([]*models.WorkSession, error) {
	var out []*models.WorkSession
	for _, sess := range s.f.store.sessions {
		if sess.PaymentRequestID != nil && *sess.PaymentRequestID == paymentRequestID {
			out = append(out, sess)
		}
	}
	return out, nil
}

type fixtureLister struct {
	f *fixture
}

func (l *fixtureLister) ListByOrganization(ctx context.Context, orgID uuid.UUID, _ string) ([]*models.PaymentRequest, error) {
	if l.f.store.existing != nil && l.f.store.existing.OrganizationID == orgID {
		return []*models.PaymentRequest{l.f.store.existing}, nil
	}
	return nil, nil
}

func (l *fixtureLister) GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.PaymentRequest, error) {
	return l.f.store.GetByID(ctx, id, orgID)
}

func authedRequest(method, path, body string, identity auth.Identity) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	return r.WithContext(middleware.WithIdentity(r.Context(), identity))
}

func workerIdentity(f *fixture) auth.Identity {
	return auth.Identity{AccountID: f.workerID, OrganizationID: f.orgID, Role: models.RoleWorker}
}

func adminIdentity(f *fixture) auth.Identity {
	return auth.Identity{AccountID: f.adminID, OrganizationID: f.orgID, Role: models.RoleAdmin}
}

func TestHandlerReceivePayment(t *testing.T) {
	f := newFixture(t)
	ids := f.approvedSessions("80.00", "40.00")
	h := newTestHandler(t, f)

	body, _ := json.Marshal(map[string]any{
		"work_session_ids": []string{ids[0].String(), ids[1].String()},
	})
	r := authedRequest(http.MethodPost, "/v1/payments", string(body), workerIdentity(f))
	w := httptest.NewRecorder()
	h.ReceivePayment(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp receiptResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AmountUSD != "120.00" {
		t.Errorf("amount_usd = %q", resp.AmountUSD)
	}
	if resp.Status != models.PaymentStatusCompleted {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.TransactionHash == nil {
		t.Error("missing transaction_hash")
	}
}

func TestHandlerReceivePaymentSchemaReject(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(t, f)

	cases := []struct {
		name string
		body string
	}{
		{"missing session ids", `{}`},
		{"empty session ids", `{"work_session_ids":[]}`},
		{"not a uuid", `{"work_session_ids":["nope"]}`},
		{"bad crypto type", `{"work_session_ids":["` + uuid.NewString() + `"],"crypto_type":"DOGE"}`},
		{"unknown field", `{"work_session_ids":["` + uuid.NewString() + `"],"amount":"100"}`},
		{"not JSON", `{{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := authedRequest(http.MethodPost, "/v1/payments", tc.body, workerIdentity(f))
			w := httptest.NewRecorder()
			h.ReceivePayment(w, r)
			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422 (body %s)", w.Code, w.Body.String())
			}
		})
	}
	if f.store.created != nil {
		t.Error("rejected request still reached the service")
	}
}

func TestHandlerReceivePaymentUnauthorized(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(t, f)

	r := httptest.NewRequest(http.MethodPost, "/v1/payments", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ReceivePayment(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandlerApprovePaymentForbiddenForWorker(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(t, f)

	body := `{"worker_id":"` + f.workerID.String() + `","work_session_ids":["` + uuid.NewString() + `"],"crypto_type":"NATIVE"}`
	r := authedRequest(http.MethodPost, "/v1/payments/approve", body, workerIdentity(f))
	w := httptest.NewRecorder()
	h.ApprovePayment(w, r)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestHandlerApprovePayment(t *testing.T) {
	f := newFixture(t)
	ids := f.approvedSessions("30.00")
	h := newTestHandler(t, f)

	body, _ := json.Marshal(map[string]any{
		"worker_id":        f.workerID.String(),
		"work_session_ids": []string{ids[0].String()},
		"crypto_type":      models.CryptoTypeNative,
	})
	r := authedRequest(http.MethodPost, "/v1/payments/approve", string(body), adminIdentity(f))
	w := httptest.NewRecorder()
	h.ApprovePayment(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if f.store.created == nil || f.store.created.Status != models.PaymentStatusPending {
		t.Errorf("created = %+v", f.store.created)
	}
}

func TestHandlerExecutePaymentNotFound(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(t, f)

	r := authedRequest(http.MethodPost, "/v1/payments/"+uuid.NewString()+"/execute", "", adminIdentity(f))
	w := httptest.NewRecorder()
	h.ExecutePayment(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandlerExecutePaymentConflict(t *testing.T) {
	f := newFixture(t)
	f.store.existing = pendingRequest(f)
	f.store.existing.Status = models.PaymentStatusCompleted
	h := newTestHandler(t, f)

	r := authedRequest(http.MethodPost, "/v1/payments/"+f.store.existing.ID.String()+"/execute", "", adminIdentity(f))
	w := httptest.NewRecorder()
	h.ExecutePayment(w, r)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestHandlerCompleteManualPayment(t *testing.T) {
	f := newFixture(t)
	f.store.existing = pendingRequest(f)
	h := newTestHandler(t, f)

	r := authedRequest(http.MethodPost, "/v1/payments/"+f.store.existing.ID.String()+"/complete",
		`{"transaction_hash":"ff00aa11"}`, adminIdentity(f))
	w := httptest.NewRecorder()
	h.CompleteManualPayment(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	// Hashes are normalized to uppercase before they are stored.
	if f.store.manualHash != "FF00AA11" {
		t.Errorf("stored hash = %q", f.store.manualHash)
	}
}

func TestHandlerCompleteManualPaymentSchemaReject(t *testing.T) {
	f := newFixture(t)
	f.store.existing = pendingRequest(f)
	h := newTestHandler(t, f)

	for _, body := range []string{`{}`, `{"transaction_hash":""}`, `{"transaction_hash":"not hex!"}`} {
		r := authedRequest(http.MethodPost, "/v1/payments/"+f.store.existing.ID.String()+"/complete", body, adminIdentity(f))
		w := httptest.NewRecorder()
		h.CompleteManualPayment(w, r)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("body %s: status = %d, want 422", body, w.Code)
		}
	}
}

func TestHandlerGetPaymentScopedToWorker(t *testing.T) {
	f := newFixture(t)
	f.store.existing = pendingRequest(f)
	h := newTestHandler(t, f)

	// Another worker in the same org must not see this request.
	other := auth.Identity{AccountID: uuid.New(), OrganizationID: f.orgID, Role: models.RoleWorker}
	r := authedRequest(http.MethodGet, "/v1/payments/"+f.store.existing.ID.String(), "", other)
	w := httptest.NewRecorder()
	h.GetPayment(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	// The owning worker can.
	r = authedRequest(http.MethodGet, "/v1/payments/"+f.store.existing.ID.String(), "", workerIdentity(f))
	w = httptest.NewRecorder()
	h.GetPayment(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestHandlerCancelPayment(t *testing.T) {
	f := newFixture(t)
	f.store.existing = pendingRequest(f)
	h := newTestHandler(t, f)

	r := authedRequest(http.MethodPost, "/v1/payments/"+f.store.existing.ID.String()+"/cancel", "", adminIdentity(f))
	w := httptest.NewRecorder()
	h.CancelPayment(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(f.store.cancelled) != 1 {
		t.Error("cancel not forwarded to the store")
	}
}
