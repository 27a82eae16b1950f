package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/metrics"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/store"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) (http.Handler, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	st := store.New(store.Options{Metrics: m})
	t.Cleanup(st.Close)
	st.AddMessage(model.Message{
		ID:        "m1",
		ContactID: "1",
		Direction: model.Incoming,
		Type:      model.TypeText,
		Status:    model.StatusDelivered,
		Content:   "hello",
		CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	link := status.NewMachine(nil)
	_ = link.Transition(status.Connecting)
	return NewRouter(st, link, m.Registry, zap.NewNop()), m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestState(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := get(t, h, "/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var v stateView
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v.Conversations != 0 || v.Active != nil {
		t.Errorf("state = %+v, want empty store", v)
	}
	if v.Link.State != string(status.Connecting) || v.Link.Attempts != 1 {
		t.Errorf("link = %+v, want CONNECTING attempt 1", v.Link)
	}
	if v.Loading.Messages == nil {
		t.Error("loading messages encoded as null")
	}
}

func TestMessages(t *testing.T) {
	h, _ := newTestRouter(t)
	tests := []struct {
		path     string
		wantCode int
		wantLen  int
	}{
		{"/messages/contact/1", http.StatusOK, 1},
		{"/messages/contact/2", http.StatusOK, 0},
		{"/messages/bogus/1", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var out []messageView
			if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
				t.Fatal(err)
			}
			if len(out) != tt.wantLen {
				t.Errorf("messages = %d, want %d", len(out), tt.wantLen)
			}
			if tt.wantLen > 0 && (out[0].ID != "m1" || out[0].Direction != string(model.Incoming)) {
				t.Errorf("message = %+v", out[0])
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	h, m := newTestRouter(t)
	m.Send("ok")
	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "inbox_sends_total") {
		t.Error("sends counter missing from /metrics")
	}
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newTestRouter(t)
	if rec := get(t, h, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
