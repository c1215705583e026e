// Package integration provides a reusable test harness for end-to-end
// integration testing of the entity configuration server. It starts a full
// HTTP server with the sample definitions, an in-memory field store, and a
// test JWT issuer.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/entityconfig/internal/activity"
	"github.com/pitabwire/entityconfig/internal/apidoc"
	"github.com/pitabwire/entityconfig/internal/capability"
	"github.com/pitabwire/entityconfig/internal/chain"
	"github.com/pitabwire/entityconfig/internal/config"
	"github.com/pitabwire/entityconfig/internal/definition"
	"github.com/pitabwire/entityconfig/internal/entityconfig"
	"github.com/pitabwire/entityconfig/internal/getconfig"
	"github.com/pitabwire/entityconfig/internal/importexport"
	"github.com/pitabwire/entityconfig/internal/observability"
	"github.com/pitabwire/entityconfig/internal/provider"
	"github.com/pitabwire/entityconfig/internal/store"
	"github.com/pitabwire/entityconfig/internal/transport"
	"github.com/pitabwire/entityconfig/model"
)

// Class names of the sample definitions.
const (
	AccountClass = `Acme\Bundle\CRMBundle\Entity\Account`
	ContactClass = `Acme\Bundle\CRMBundle\Entity\Contact`
)

// TestHarness encapsulates a fully wired server instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	client *http.Client
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Registry    *definition.Registry
	Configs     *provider.Provider
	FieldStore  *store.MemoryFieldStore
	CapResolver model.CapabilityResolver
	Stages      *StageCounter
	Redis       *miniredis.Miniredis

	cfg *config.Config
}

// StageCounter counts get-config stage executions.
type StageCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *StageCounter) ObserveStage(_, stage string, _ time.Duration, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[stage]++
}

// Count returns how often stage ran.
func (c *StageCounter) Count(stage string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[stage]
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	definitionDirs []string
	policyFile     string
	handlerTimeout time.Duration
	redis          *miniredis.Miniredis
	maxUploadBytes int64
}

// WithDefinitions sets the definition directories to load.
func WithDefinitions(dirs ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.definitionDirs = dirs
	}
}

// WithPolicyFile sets the static policy YAML file for capability resolution.
func WithPolicyFile(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.policyFile = path
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithRedisCache backs the config cache with mr. Harnesses sharing mr share
// their cached configs.
func WithRedisCache(mr *miniredis.Miniredis) HarnessOption {
	return func(c *harnessConfig) {
		c.redis = mr
	}
}

// WithMaxUploadBytes limits the size of field imports.
func WithMaxUploadBytes(n int64) HarnessOption {
	return func(c *harnessConfig) {
		c.maxUploadBytes = n
	}
}

// NewTestHarness creates and starts a full test instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		maxUploadBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(hc)
	}
	if len(hc.definitionDirs) == 0 {
		hc.definitionDirs = []string{filepath.Join(repoRoot(), "definitions")}
	}
	if hc.policyFile == "" {
		hc.policyFile = filepath.Join(testdataDir(), "policies.yaml")
	}

	ctx := context.Background()
	logger := zap.NewNop()
	h := &TestHarness{t: t, Stages: &StageCounter{}, Redis: hc.redis}

	// Definitions and scopes.
	defs, err := definition.NewLoader().LoadAll(hc.definitionDirs)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	if verrs := definition.NewValidator().Validate(defs); len(verrs) > 0 {
		t.Fatalf("validate definitions: %v", verrs)
	}
	h.Registry = definition.NewRegistry(defs)

	h.cfg = config.Defaults()
	manager, err := entityconfig.NewManager(h.Registry, h.cfg.Definitions.Scopes)
	if err != nil {
		t.Fatalf("entity config manager: %v", err)
	}

	// Field store.
	h.FieldStore = store.NewMemoryFieldStore()
	if _, err := store.Seed(ctx, h.FieldStore, defs); err != nil {
		t.Fatalf("seed field store: %v", err)
	}

	// Config provider.
	var cache provider.Cache = provider.NewMemoryCache()
	if hc.redis != nil {
		client := redis.NewClient(&redis.Options{Addr: hc.redis.Addr()})
		t.Cleanup(func() { client.Close() })
		cache = provider.NewRedisCache(client, "entityconfig:test:", 0)
	}
	processor, err := getconfig.NewProcessor(h.Registry, chain.WithObserver(h.Stages))
	if err != nil {
		t.Fatalf("get-config processor: %v", err)
	}
	h.Configs = provider.New(processor, provider.WithCache(cache), provider.WithLogger(logger))

	// Capabilities, no caching in tests.
	evaluator, err := capability.NewStaticPolicyEvaluator(hc.policyFile)
	if err != nil {
		t.Fatalf("load policy file: %v", err)
	}
	h.CapResolver = capability.NewResolver(evaluator, 0, 0, nil)

	// Import/export.
	normalizer := importexport.NewFieldNormalizer(manager, entityconfig.NewFieldTypeProvider(h.cfg.FieldTypes), h.FieldStore)
	exporter := importexport.NewExporter(
		map[string]importexport.Query{model.FieldConfigModelClass: importexport.FieldQuery(h.FieldStore)},
		normalizer, 2, logger, nil,
	)
	importer := importexport.NewImporter(normalizer, h.FieldStore, logger, nil)

	// JWT issuer and server config.
	h.issuer = newTokenIssuer(t)
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	h.cfg.Identity.Issuer = h.issuer.Issuer()
	h.cfg.Identity.Audience = h.issuer.Audience()
	h.cfg.Identity.JWKSURL = h.issuer.JWKSURL()
	h.cfg.ImportExport.MaxUploadBytes = hc.maxUploadBytes
	h.cfg.Observability.Metrics.Enabled = false

	router := transport.NewRouter(transport.Dependencies{
		Config:             h.cfg,
		Logger:             logger,
		Authenticate:       transport.Authenticator(h.cfg.Identity, logger),
		CapabilityResolver: h.CapResolver,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return h.Registry.Count() > 0 },
			FieldStore:        h.FieldStore,
			PolicyEngine:      evaluator,
		},
		Configs:    h.Configs,
		Docs:       apidoc.NewBuilder(h.Configs, h.Registry, "Entity API", logger),
		Activities: activity.NewRegistry(manager, activity.NewNoteProvider()),
		Exporter:   exporter,
		Importer:   importer,
	})

	h.server = httptest.NewServer(router)
	h.client = &http.Client{Timeout: 10 * time.Second}
	t.Cleanup(h.server.Close)

	return h
}

// GenerateToken returns a token the server accepts for claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken returns a correctly signed token past its expiry.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// request describes one call against the test server.
type request struct {
	method      string
	path        string
	token       string
	body        []byte
	contentType string
	headers     map[string]string
}

func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.do(request{method: http.MethodGet, path: path, token: token})
}

func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.do(request{method: http.MethodGet, path: path, token: token, headers: headers})
}

func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.do(request{method: http.MethodDelete, path: path, token: token})
}

// Upload posts body as-is with the given content type.
func (h *TestHarness) Upload(path string, body []byte, contentType, token string) *http.Response {
	h.t.Helper()
	return h.do(request{method: http.MethodPost, path: path, token: token, body: body, contentType: contentType})
}

func (h *TestHarness) do(r request) *http.Response {
	h.t.Helper()

	req, err := http.NewRequestWithContext(h.t.Context(), r.method, h.server.URL+r.path, bytes.NewReader(r.body))
	if err != nil {
		h.t.Fatalf("build %s %s: %v", r.method, r.path, err)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", r.method, r.path, err)
	}
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// ReadBody drains the response body.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus reports an error, including the body, when the status differs.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, want, h.ReadBody(resp))
	}
}

// AssertJSON requires status want and decodes the body into target.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, want int, target any) {
	t.Helper()
	body := h.ReadBody(resp)
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, want, body)
	}
	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("decode body: %v\nbody: %s", err, body)
	}
}

// ConfigPath builds the config endpoint path for class.
func ConfigPath(requestType, version, class, action string) string {
	p := fmt.Sprintf("/api/config/%s/%s?class=%s", requestType, version, queryEscape(class))
	if action != "" {
		p += "&action=" + action
	}
	return p
}

func queryEscape(s string) string {
	return strings.NewReplacer(`\`, "%5C", " ", "%20").Replace(s)
}

// claimsFor returns an acme-corp user holding role.
func claimsFor(name, role string) TestClaims {
	return TestClaims{
		SubjectID: "user-" + name,
		TenantID:  "acme-corp",
		Email:     name + "@acme.example.com",
		Roles:     []string{role},
	}
}

func AdminClaims() TestClaims   { return claimsFor("admin", "config_admin") }
func ViewerClaims() TestClaims  { return claimsFor("viewer", "config_viewer") }
func EditorClaims() TestClaims  { return claimsFor("editor", "field_editor") }
func AuditorClaims() TestClaims { return claimsFor("auditor", "auditor") }

func packageDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Dir(file)
}

func testdataDir() string { return filepath.Join(packageDir(), "testdata") }
func repoRoot() string    { return filepath.Join(packageDir(), "..", "..") }

// FormatJSON renders v for failure messages.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
