package app

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	body := fmt.Sprintf("[server]\nbase_url = %q\n\n[inbox]\nview_mode = \"contact\"\n", baseURL)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestModuleGraphIsComplete(t *testing.T) {
	tests := []struct {
		name string
		p    Params
	}{
		{"minimal", Params{Profile: "test"}},
		{"daemon", Params{Profile: "test", WithTransport: true, WithDebugServer: true}},
		{"tui", Params{Profile: "test", WithTransport: true, LogToFileOnly: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := fx.ValidateApp(Module(tt.p), fx.NopLogger); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestModuleLifecycle(t *testing.T) {
	t.Setenv("INBOX_HOME", t.TempDir())
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversations" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"c1","contact_id":"1","name":"Ana","unread_count":1,"last_activity":"2026-05-01T12:00:00Z"}]`))
	}))
	defer api.Close()
	p := Params{Profile: "test", Binary: "inbox-test", ConfigPath: writeConfig(t, api.URL)}

	var st *store.Store
	app := fxtest.New(t, Module(p), fx.Populate(&st), fx.NopLogger)
	app.RequireStart()

	deadline := time.Now().Add(2 * time.Second)
	for len(st.Conversations()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := len(st.Conversations()); n != 1 {
		t.Errorf("conversations = %d, want 1 after startup", n)
	}
	app.RequireStop()

	// The profile lock is released on stop.
	again := fxtest.New(t, Module(p), fx.NopLogger)
	again.RequireStart()
	again.RequireStop()
}
