package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/entityconfig/internal/activity"
	"github.com/pitabwire/entityconfig/internal/importexport"
	"github.com/pitabwire/entityconfig/model"
)

// --- fakes ---

type configCall struct {
	className, version, requestType, requestAction string
}

type fakeConfigs struct {
	calls  []configCall
	resets int
	err    error
}

func (f *fakeConfigs) GetConfig(_ context.Context, className, version, requestType, requestAction string) (model.Config, error) {
	f.calls = append(f.calls, configCall{className, version, requestType, requestAction})
	if f.err != nil {
		return nil, f.err
	}
	return model.Config{
		model.ConfigDefinition: &model.EntityConfig{ClassName: className},
	}, nil
}

func (f *fakeConfigs) Reset(context.Context) error {
	f.resets++
	return f.err
}

type fakeDocs struct {
	err error
}

func (f *fakeDocs) Build(_ context.Context, requestType, version string) (*openapi3.T, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: requestType, Version: version},
		Paths:   openapi3.NewPaths(),
	}, nil
}

type fakeActivities map[string][]activity.Provider

func (f fakeActivities) ApplicableActivities(className string) []activity.Provider {
	return f[className]
}

type fakeExporter struct {
	format string
	err    error
}

func (f *fakeExporter) Export(_ context.Context, format string, w io.Writer) (importexport.ExportResult, error) {
	f.format = format
	if f.err != nil {
		return importexport.ExportResult{}, f.err
	}
	io.WriteString(w, "entity.id,fieldName\n1,name\n")
	return importexport.ExportResult{Read: 1, Written: 1}, nil
}

type fakeImporter struct {
	format  string
	payload []byte
	err     error
}

func (f *fakeImporter) Import(_ context.Context, format string, payload []byte) (importexport.ImportResult, error) {
	f.format = format
	f.payload = payload
	if f.err != nil {
		return importexport.ImportResult{}, f.err
	}
	return importexport.ImportResult{Read: 1, Imported: 1}, nil
}

// --- helpers ---

// serve routes a single request through a chi router so URL params resolve.
func serve(method, pattern, target string, body io.Reader, handler http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, handler)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, body))
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *model.ErrorEnvelope {
	t.Helper()
	var body struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error == nil {
		t.Fatal("response has no error envelope")
	}
	return body.Error
}

// --- config ---

func TestHandleGetConfig(t *testing.T) {
	configs := &fakeConfigs{}
	w := serve("GET", "/api/config/{requestType}/{version}",
		"/api/config/rest/1.2?class=Acme%5CAccount&action=get_list", nil, handleGetConfig(configs))

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	want := configCall{`Acme\Account`, "1.2", "rest", "get_list"}
	if len(configs.calls) != 1 || configs.calls[0] != want {
		t.Errorf("calls = %v, want [%v]", configs.calls, want)
	}

	var body map[string]map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["definition"]["class_name"] != `Acme\Account` {
		t.Errorf("definition = %v", body["definition"])
	}
}

func TestHandleGetConfig_defaultAction(t *testing.T) {
	configs := &fakeConfigs{}
	serve("GET", "/api/config/{requestType}/{version}",
		"/api/config/rest/latest?class=Acme", nil, handleGetConfig(configs))

	if len(configs.calls) != 1 || configs.calls[0].requestAction != defaultRequestAction {
		t.Errorf("calls = %v, want action %q", configs.calls, defaultRequestAction)
	}
}

func TestHandleGetConfig_missingClass(t *testing.T) {
	configs := &fakeConfigs{}
	w := serve("GET", "/api/config/{requestType}/{version}",
		"/api/config/rest/latest", nil, handleGetConfig(configs))

	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(configs.calls) != 0 {
		t.Error("provider should not be called")
	}
}

func TestHandleGetConfig_errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown class", model.NewNotFoundError("entity not found"), 404},
		{"invalid configuration", model.NewInvalidConfigurationError("bad definition"), 400},
		{"cache down", model.NewCacheUnavailableError(), 503},
		{"logic error", model.NewLogicError("wrong processor"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve("GET", "/api/config/{requestType}/{version}",
				"/api/config/rest/latest?class=Acme", nil, handleGetConfig(&fakeConfigs{err: tt.err}))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHandleResetConfigCache(t *testing.T) {
	configs := &fakeConfigs{}
	w := serve("DELETE", "/api/config/cache", "/api/config/cache", nil, handleResetConfigCache(configs))

	if w.Code != 204 {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if configs.resets != 1 {
		t.Errorf("resets = %d, want 1", configs.resets)
	}

	w = serve("DELETE", "/api/config/cache", "/api/config/cache", nil,
		handleResetConfigCache(&fakeConfigs{err: model.NewCacheUnavailableError()}))
	if w.Code != 503 {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// --- joins ---

func TestHandleOptimizeJoins(t *testing.T) {
	body := `{
		"joins": [
			{"path": "owner", "type": "LEFT"},
			{"path": "owner.organization", "type": "LEFT"},
			{"path": "contacts", "type": "LEFT"}
		],
		"expression": {"type": "AND", "expressions": [
			{"field": "owner.organization.name", "operator": "EQ", "value": "Acme"},
			{"type": "NOT", "expressions": [{"field": "contacts.email", "operator": "NEQ_OR_NULL", "value": "a@b.c"}]}
		]}
	}`
	w := serve("POST", "/api/joins/optimize", "/api/joins/optimize", strings.NewReader(body), handleOptimizeJoins)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp optimizeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"INNER", "INNER", "LEFT"}
	for i, j := range resp.Joins {
		if string(j.Type) != want[i] {
			t.Errorf("joins[%d] (%s) = %s, want %s", i, j.Path, j.Type, want[i])
		}
	}
	if len(resp.Fields) != 1 || resp.Fields[0] != "owner.organization.name" {
		t.Errorf("fields = %v, want [owner.organization.name]", resp.Fields)
	}
}

func TestHandleOptimizeJoins_badRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, 400},
		{"missing expression", `{"joins": []}`, 400},
		{"malformed expression", `{"expression": {"operator": "EQ"}}`, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve("POST", "/api/joins/optimize", "/api/joins/optimize", strings.NewReader(tt.body), handleOptimizeJoins)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

// --- doc ---

func TestHandleAPIDoc(t *testing.T) {
	w := serve("GET", "/api/doc/{requestType}/{version}", "/api/doc/rest/latest", nil, handleAPIDoc(&fakeDocs{}))

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var doc map[string]any
	json.NewDecoder(w.Body).Decode(&doc)
	info, _ := doc["info"].(map[string]any)
	if info["title"] != "rest" || info["version"] != "latest" {
		t.Errorf("info = %v", info)
	}
}

func TestHandleAPIDoc_error(t *testing.T) {
	w := serve("GET", "/api/doc/{requestType}/{version}", "/api/doc/rest/latest", nil,
		handleAPIDoc(&fakeDocs{err: model.NewCacheUnavailableError()}))
	if w.Code != 503 {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// --- activities ---

func TestHandleActivities(t *testing.T) {
	lister := fakeActivities{"Acme": {activity.NewNoteProvider()}}
	w := serve("GET", "/api/entities/activities", "/api/entities/activities?class=Acme", nil, handleActivities(lister))

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Data []activity.Descriptor `json:"data"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	if len(body.Data) != 1 || body.Data[0].ActivityClass != model.NoteClass {
		t.Errorf("data = %+v", body.Data)
	}
}

func TestHandleActivities_emptyAndMissingClass(t *testing.T) {
	w := serve("GET", "/api/entities/activities", "/api/entities/activities?class=Other", nil, handleActivities(fakeActivities{}))
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"data":[]}` {
		t.Errorf("body = %s, want empty data list", got)
	}

	w = serve("GET", "/api/entities/activities", "/api/entities/activities", nil, handleActivities(fakeActivities{}))
	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// --- fields ---

func TestHandleExportFields(t *testing.T) {
	exporter := &fakeExporter{}
	w := serve("GET", "/api/fields/export", "/api/fields/export", nil, handleExportFields(exporter))

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if exporter.format != importexport.FormatCSV {
		t.Errorf("format = %q, want csv default", exporter.format)
	}
	if got := w.Header().Get("Content-Type"); got != importexport.ContentType(importexport.FormatCSV) {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="fields.csv"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(w.Body.String(), "entity.id,fieldName\n") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestHandleExportFields_error(t *testing.T) {
	exporter := &fakeExporter{err: model.NewBadRequestError("unsupported format")}
	w := serve("GET", "/api/fields/export", "/api/fields/export?format=pdf", nil, handleExportFields(exporter))

	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); got != "" {
		t.Errorf("failed export should not be an attachment, got %q", got)
	}
	if exporter.format != "pdf" {
		t.Errorf("format = %q, want pdf", exporter.format)
	}
}

func TestHandleImportFields(t *testing.T) {
	importer := &fakeImporter{}
	payload := []byte("entity.id,fieldName,type\n1,name,string\n")
	w := serve("POST", "/api/fields/import", "/api/fields/import?format=csv", bytes.NewReader(payload),
		handleImportFields(importer, 1<<20))

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !bytes.Equal(importer.payload, payload) {
		t.Errorf("payload = %q", importer.payload)
	}
	var res importexport.ImportResult
	json.NewDecoder(w.Body).Decode(&res)
	if res.Imported != 1 {
		t.Errorf("imported = %d, want 1", res.Imported)
	}
}

func TestHandleImportFields_rejected(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		maxBytes int64
		err      error
		want     int
		message  string
	}{
		{"too large", strings.Repeat("x", 32), 16, nil, 400, "upload exceeds 16 bytes"},
		{"empty", "", 16, nil, 400, "upload is empty"},
		{"malformed", "x", 16, model.NewBadRequestError("invalid csv"), 400, "invalid csv"},
		{"store down", "x", 16, model.NewInternalError(), 500, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve("POST", "/api/fields/import", "/api/fields/import", strings.NewReader(tt.payload),
				handleImportFields(&fakeImporter{err: tt.err}, tt.maxBytes))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.message != "" {
				if got := decodeError(t, w).Message; got != tt.message {
					t.Errorf("message = %q, want %q", got, tt.message)
				}
			}
		})
	}
}
