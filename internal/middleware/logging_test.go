package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/lexcms/internal/model"
)

type mockCollector struct {
	statuses  []int
	latencies int
}

func (m *mockCollector) RecordRemoteFailure(string)  {}
func (m *mockCollector) RecordFallbackWrite(string)  {}
func (m *mockCollector) RecordLogin(string, string)  {}
func (m *mockCollector) RecordUpload(string)         {}
func (m *mockCollector) RecordHTTPStatus(code int)   { m.statuses = append(m.statuses, code) }
func (m *mockCollector) RecordSessionsCleaned(int64) {}
func (m *mockCollector) RecordRequestLatency(time.Duration) {
	m.latencies++
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		user      *model.User
		wantLevel string
	}{
		{"成功はINFO", http.StatusOK, &model.User{ID: "user-1"}, "INFO"},
		{"4xxはWARN", http.StatusForbidden, nil, "WARN"},
		{"5xxはERROR", http.StatusInternalServerError, nil, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			collector := &mockCollector{}

			handler := chimiddleware.RequestID(NewLoggingMiddleware(logger, collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})))

			req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
			if tt.user != nil {
				req = req.WithContext(ContextWithUser(req.Context(), tt.user, nil))
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("invalid log output: %v\n%s", err, buf.String())
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if entry["msg"] != "http_request" || entry["path"] != "/api/articles" || entry["method"] != "GET" {
				t.Errorf("entry = %v", entry)
			}
			if int(entry["status"].(float64)) != tt.status {
				t.Errorf("status = %v, want %d", entry["status"], tt.status)
			}
			if _, ok := entry["request_id"]; !ok {
				t.Error("request_id missing")
			}
			_, hasUser := entry["user_id"]
			if hasUser != (tt.user != nil) {
				t.Errorf("user_id present = %v, want %v", hasUser, tt.user != nil)
			}
			if len(collector.statuses) != 1 || collector.statuses[0] != tt.status || collector.latencies != 1 {
				t.Errorf("collector = %+v", collector)
			}
		})
	}
}
