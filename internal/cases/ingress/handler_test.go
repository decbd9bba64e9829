package ingress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"casebook_backend/internal/cases"
	"casebook_backend/internal/events"
	"casebook_backend/platform/logger"
	"casebook_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) events() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.published...)
}

func newTestRouter(bus events.Bus) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(bus, validator.New(), logger.New("test"))
	r := gin.New()
	r.POST("/cases/status-changed", h.StatusChanged)
	return r
}

func post(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/cases/status-changed", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusChangedPublishesEvent(t *testing.T) {
	bus := &recordingBus{}
	r := newTestRouter(bus)

	w := post(t, r, `{
		"caseReference": "SG-2024-001",
		"country": "Singapore",
		"hospital": "General Hospital",
		"status": "CaseBooked",
		"submittedBy": "planner@hospital.sg",
		"surgeon": "Dr. Tan"
	}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (%s)", w.Code, http.StatusAccepted, w.Body.String())
	}
	published := bus.events()
	if len(published) != 1 {
		t.Fatalf("published %d events, want 1", len(published))
	}
	evt, ok := published[0].(events.CaseStatusChanged)
	if !ok {
		t.Fatalf("published %T, want events.CaseStatusChanged", published[0])
	}
	if evt.Case.Reference != "SG-2024-001" {
		t.Errorf("reference = %q", evt.Case.Reference)
	}
	if evt.Case.Status != cases.StatusCaseBooked {
		t.Errorf("status = %q", evt.Case.Status)
	}
	if evt.Case.Surgeon != "Dr. Tan" {
		t.Errorf("surgeon = %q", evt.Case.Surgeon)
	}
}

func TestStatusChangedRejectsUnknownStatus(t *testing.T) {
	bus := &recordingBus{}
	r := newTestRouter(bus)

	w := post(t, r, `{"caseReference": "SG-1", "country": "Singapore", "status": "teleported"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if len(bus.events()) != 0 {
		t.Errorf("event published for rejected request")
	}
}

func TestStatusChangedRejectsMissingFields(t *testing.T) {
	bus := &recordingBus{}
	r := newTestRouter(bus)

	w := post(t, r, `{"country": "Singapore"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if len(bus.events()) != 0 {
		t.Errorf("event published for rejected request")
	}
}
