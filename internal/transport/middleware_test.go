package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/entityconfig/internal/config"
	"github.com/pitabwire/entityconfig/internal/observability"
	"github.com/pitabwire/entityconfig/model"
)

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(code) })
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	mw := Recovery(zap.New(core))

	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("stage table corrupted")
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config/rest/1.0", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "stage table") {
		t.Error("panic value leaked into the response")
	}
	if logs.Len() != 1 {
		t.Errorf("logged %d entries, want 1", logs.Len())
	}

	rec = httptest.NewRecorder()
	mw(statusHandler(http.StatusOK)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	mw := CORS(config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         3600,
	})

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
	}{
		{"preflight", http.MethodOptions, "https://app.example.com", true, http.StatusNoContent, "https://app.example.com"},
		{"simple request", http.MethodGet, "https://app.example.com", false, http.StatusOK, "https://app.example.com"},
		{"foreign origin", http.MethodGet, "https://evil.example.com", false, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(tt.method, "/api/config/rest/1.0", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if called == tt.preflight {
				t.Errorf("handler called = %v for preflight = %v", called, tt.preflight)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		inbound  string
		wantKept bool
	}{
		{"generated", "", false},
		{"propagated", "test-corr-123", true},
		{"too long", strings.Repeat("a", 129), false},
		{"control characters", "corr\nforged=1", false},
		{"spaces", "corr id", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationIDFrom(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.inbound != "" {
				req.Header.Set("X-Correlation-Id", tt.inbound)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if seen == "" || rec.Header().Get("X-Correlation-Id") != seen {
				t.Fatalf("context ID %q, header %q", seen, rec.Header().Get("X-Correlation-Id"))
			}
			if (seen == tt.inbound) != tt.wantKept {
				t.Errorf("ID = %q, inbound %q kept = %v", seen, tt.inbound, !tt.wantKept)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(statusHandler(http.StatusOK)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, kv := range securityHeaders {
		if got := rec.Header().Get(kv[0]); got != kv[1] {
			t.Errorf("%s = %q, want %q", kv[0], got, kv[1])
		}
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}

func TestBuildRequestContextMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		paths  map[string]string
		claims map[string]any
		want   model.RequestContext
	}{
		{
			name: "standard claims",
			claims: map[string]any{
				"sub": "user-42", "email": "user@example.com", "tenant_id": "tenant-1",
				"roles": []any{"config_admin", "auditor"},
			},
			want: model.RequestContext{
				SubjectID: "user-42", Email: "user@example.com", TenantID: "tenant-1",
				Roles: []string{"config_admin", "auditor"},
			},
		},
		{
			name:  "keycloak layout",
			paths: map[string]string{"tenant_id": "custom_tenant", "roles": "realm_access.roles"},
			claims: map[string]any{
				"sub":           "user-99",
				"realm_access":  map[string]any{"roles": []any{"field_editor"}},
				"custom_tenant": "tenant-kc",
			},
			want: model.RequestContext{SubjectID: "user-99", TenantID: "tenant-kc", Roles: []string{"field_editor"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *model.RequestContext
			handler := RequestID(BuildRequestContextMiddleware(tt.paths)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = model.RequestContextFrom(r.Context())
			})))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithClaims(req.Context(), tt.claims))
			req.Header.Set("Accept-Language", "de-DE")
			req.Header.Set("X-Correlation-Id", "corr-7")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got == nil {
				t.Fatal("no RequestContext in context")
			}
			if got.SubjectID != tt.want.SubjectID || got.TenantID != tt.want.TenantID || got.Email != tt.want.Email {
				t.Errorf("identity = %q/%q/%q, want %q/%q/%q",
					got.SubjectID, got.TenantID, got.Email, tt.want.SubjectID, tt.want.TenantID, tt.want.Email)
			}
			if strings.Join(got.Roles, ",") != strings.Join(tt.want.Roles, ",") {
				t.Errorf("Roles = %v, want %v", got.Roles, tt.want.Roles)
			}
			if got.Locale != "de-DE" || got.CorrelationID != "corr-7" {
				t.Errorf("Locale = %q, CorrelationID = %q", got.Locale, got.CorrelationID)
			}
		})
	}
}

func TestResolveCapabilities(t *testing.T) {
	tests := []struct {
		name     string
		resolver model.CapabilityResolver
		want     bool
	}{
		{"resolved", &mockResolver{caps: model.CapabilitySet{model.CapConfigView: true}}, true},
		{"resolver error", &mockResolver{err: model.NewInternalError()}, false},
		{"no resolver", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var caps model.CapabilitySet
			handler := BuildRequestContextMiddleware(nil)(ResolveCapabilities(tt.resolver, zap.NewNop())(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					caps = CapabilitiesFrom(r.Context())
					w.WriteHeader(http.StatusOK)
				})))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithClaims(req.Context(), map[string]any{"sub": "user-1"}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
			if got := caps.Has(model.CapConfigView); got != tt.want {
				t.Errorf("has %s = %v, want %v", model.CapConfigView, got, tt.want)
			}
		})
	}
}

func TestRequireCapability(t *testing.T) {
	tests := []struct {
		name string
		caps model.CapabilitySet
		want int
	}{
		{"granted", model.CapabilitySet{model.CapConfigView: true}, http.StatusOK},
		{"wildcard", model.CapabilitySet{"api:config:*": true}, http.StatusOK},
		{"other capability", model.CapabilitySet{model.CapEntityView: true}, http.StatusForbidden},
		{"none", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.caps != nil {
				req = req.WithContext(WithCapabilities(req.Context(), tt.caps))
			}
			rec := httptest.NewRecorder()
			RequireCapability(model.CapConfigView)(statusHandler(http.StatusOK)).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandlerTimeout(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, hasDeadline = r.Context().Deadline()
	})

	HandlerTimeout(100*time.Millisecond)(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !hasDeadline || time.Until(deadline) > 200*time.Millisecond {
		t.Errorf("deadline = %v (set %v), want within 100ms", deadline, hasDeadline)
	}

	HandlerTimeout(0)(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if hasDeadline {
		t.Error("a zero timeout should not set a deadline")
	}
}

func TestRequestLogging(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusOK, zapcore.InfoLevel},
		{http.StatusNotFound, zapcore.WarnLevel},
		{http.StatusServiceUnavailable, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)

			r := chi.NewRouter()
			r.Use(RequestLogging(zap.New(core)))
			r.Get("/api/config/{requestType}/{version}", func(w http.ResponseWriter, r *http.Request) {
				if observability.LoggerFrom(r.Context(), nil) == nil {
					t.Error("request logger not stored in context")
				}
				w.WriteHeader(tt.status)
			})
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config/rest/1.0", nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("got %d log entries, want 1", len(entries))
			}
			if entries[0].Level != tt.level {
				t.Errorf("level = %v, want %v", entries[0].Level, tt.level)
			}
			fields := entries[0].ContextMap()
			if fields["route"] != "/api/config/{requestType}/{version}" || fields["status"] != int64(tt.status) {
				t.Errorf("fields = %v", fields)
			}
		})
	}
}
