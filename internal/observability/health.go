package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// HealthResponse is the body of the liveness endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the body of the readiness endpoint.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// ReadinessChecks lists what the service needs before it takes traffic.
// DefinitionsLoaded is always checked; the backends only when set.
type ReadinessChecks struct {
	DefinitionsLoaded func() bool

	ConfigCache  HealthChecker
	FieldStore   HealthChecker
	PolicyEngine HealthChecker
}

var errNoDefinitions = errors.New("no definitions loaded")

func (c ReadinessChecks) all() map[string]HealthChecker {
	out := map[string]HealthChecker{
		"definitions": CheckFunc(func(context.Context) error {
			if c.DefinitionsLoaded == nil || !c.DefinitionsLoaded() {
				return errNoDefinitions
			}
			return nil
		}),
	}
	for name, hc := range map[string]HealthChecker{
		"config_cache":  c.ConfigCache,
		"field_store":   c.FieldStore,
		"policy_engine": c.PolicyEngine,
	} {
		if hc != nil {
			out[name] = hc
		}
	}
	return out
}

const checkTimeout = 2 * time.Second

// HandleHealth serves the liveness endpoint.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeHealthJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version, Commit: Commit})
	}
}

// HandleReady serves the readiness endpoint. Checks run concurrently, each
// bounded by its own timeout; any failure answers 503.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results = make(map[string]CheckResult)
		)
		for name, hc := range checks.all() {
			wg.Go(func() {
				res := runCheck(r.Context(), hc)
				mu.Lock()
				results[name] = res
				mu.Unlock()
			})
		}
		wg.Wait()

		resp := ReadinessResponse{Status: "ready", Checks: results}
		status := http.StatusOK
		for _, res := range results {
			if res.Status != "ok" {
				resp.Status = "not_ready"
				status = http.StatusServiceUnavailable
				break
			}
		}
		writeHealthJSON(w, status, resp)
	}
}

func runCheck(parent context.Context, hc HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := hc.HealthCheck(ctx)
	res := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}

func writeHealthJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
