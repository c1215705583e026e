package entityconfig

import (
	"reflect"
	"slices"
	"testing"

	"github.com/pitabwire/entityconfig/internal/config"
	"github.com/pitabwire/entityconfig/internal/definition"
	"github.com/pitabwire/entityconfig/model"
)

const accountClass = `Acme\Bundle\CRMBundle\Entity\Account`

func testRegistry() *definition.Registry {
	return definition.NewRegistry([]model.EntityDefinition{
		{
			Class: accountClass,
			ID:    1,
			Scopes: map[string]map[string]any{
				"entity":   {"label": "Account"},
				"activity": {"activities": []any{model.NoteClass}},
			},
			Fields: []model.FieldDefinition{
				{ID: 10, Name: "name", Type: "string", Scopes: map[string]map[string]any{
					"entity":       {"label": "Name"},
					"importexport": {"header": "Account name", "order": 1},
				}},
				{ID: 11, Name: "id", Type: "integer"},
			},
		},
		{Class: model.NoteClass, ID: 3},
	})
}

func mustConfig(t *testing.T, p *ScopeProvider, className, fieldName string) *Config {
	t.Helper()
	cfg, err := p.GetConfig(className, fieldName)
	if err != nil {
		t.Fatalf("GetConfig(%s, %q) error = %v", className, fieldName, err)
	}
	return cfg
}

func TestScopeProvider_entityConfig(t *testing.T) {
	p := NewScopeProvider("activity", testRegistry())

	if p.Scope() != "activity" {
		t.Errorf("Scope() = %q", p.Scope())
	}
	if !p.HasConfig(accountClass, "") || p.HasConfig("Unknown", "") {
		t.Error("HasConfig should report only known classes")
	}

	cfg := mustConfig(t, p, accountClass, "")
	if !cfg.Has("activities") || !reflect.DeepEqual(cfg.Get("activities"), []any{model.NoteClass}) {
		t.Errorf("activities = %v", cfg.Get("activities"))
	}
	if want := (ConfigID{Scope: "activity", ClassName: accountClass}); cfg.ID() != want {
		t.Errorf("ID() = %+v, want %+v", cfg.ID(), want)
	}
}

func TestScopeProvider_emptyScopeStillConfigured(t *testing.T) {
	p := NewScopeProvider("activity", testRegistry())

	if !p.HasConfig(model.NoteClass, "") {
		t.Fatal("an entity without scope values still has a config")
	}
	cfg := mustConfig(t, p, model.NoteClass, "")
	if cfg.Has("activities") || len(cfg.All()) != 0 {
		t.Errorf("config = %v, want empty", cfg.All())
	}
}

func TestScopeProvider_fieldConfig(t *testing.T) {
	p := NewScopeProvider("importexport", testRegistry())

	for field, want := range map[string]bool{"name": true, "id": true, "missing": false} {
		if got := p.HasConfig(accountClass, field); got != want {
			t.Errorf("HasConfig(%s) = %v, want %v", field, got, want)
		}
	}

	cfg := mustConfig(t, p, accountClass, "name")
	if cfg.Get("header") != "Account name" {
		t.Errorf("header = %v", cfg.Get("header"))
	}
	if id := cfg.ID(); id.FieldType != "string" || !id.IsField() {
		t.Errorf("ID() = %+v", id)
	}
	if codes := cfg.Codes(); !slices.Equal(codes, []string{"header", "order"}) {
		t.Errorf("Codes() = %v", codes)
	}

	if _, err := p.GetConfig(accountClass, "missing"); model.CodeOf(err) != model.ErrNotFound {
		t.Errorf("missing field error = %v, want NOT_FOUND", err)
	}
}

func TestScopeProvider_byID(t *testing.T) {
	p := NewScopeProvider("activity", testRegistry())

	id := ConfigID{Scope: "activity", ClassName: accountClass}
	if !p.HasConfigByID(id) {
		t.Error("HasConfigByID() = false")
	}
	cfg, err := p.GetConfigByID(id)
	if err != nil || !cfg.Has("activities") {
		t.Errorf("GetConfigByID() = %v, %v", cfg, err)
	}

	_, err = p.GetConfigByID(ConfigID{Scope: "activity", ClassName: "Unknown"})
	if model.CodeOf(err) != model.ErrNotFound {
		t.Errorf("unknown class error = %v, want NOT_FOUND", err)
	}
}

func TestScopeProvider_configs(t *testing.T) {
	cfgs := NewScopeProvider("entity", testRegistry()).Configs()
	if len(cfgs) != 2 {
		t.Fatalf("Configs() = %d entries, want 2", len(cfgs))
	}
	if cfgs[0].ID().ClassName != accountClass || cfgs[1].ID().ClassName != model.NoteClass {
		t.Errorf("order = %s, %s", cfgs[0].ID().ClassName, cfgs[1].ID().ClassName)
	}
}

func TestConfig_copiesValues(t *testing.T) {
	values := map[string]any{"label": "A", "empty": nil}
	cfg := NewConfig(ConfigID{Scope: "entity", ClassName: "A"}, values)
	values["label"] = "changed"

	if cfg.Get("label") != "A" {
		t.Errorf("label = %v after mutating the input", cfg.Get("label"))
	}
	if cfg.Has("empty") {
		t.Error("a nil value is not set")
	}
	if got := cfg.GetOr("empty", "fallback"); got != "fallback" {
		t.Errorf("GetOr() = %v", got)
	}

	all := cfg.All()
	all["label"] = "mutated"
	if cfg.Get("label") != "A" {
		t.Errorf("label = %v after mutating All()", cfg.Get("label"))
	}
}

func TestConfigID_String(t *testing.T) {
	tests := map[string]ConfigID{
		"entity:A":       {Scope: "entity", ClassName: "A"},
		"entity:A::name": {Scope: "entity", ClassName: "A", FieldName: "name"},
	}
	for want, id := range tests {
		if got := id.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestManager(t *testing.T) {
	order := []string{"entity", "importexport", "activity"}
	m, err := NewManager(testRegistry(), order)
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(m.Scopes(), order) {
		t.Errorf("Scopes() = %v", m.Scopes())
	}
	var scopes []string
	for _, p := range m.Providers() {
		scopes = append(scopes, p.Scope())
	}
	if !slices.Equal(scopes, order) {
		t.Errorf("provider order = %v, want %v", scopes, order)
	}

	p, ok := m.Provider("activity")
	if !ok || p.Scope() != "activity" {
		t.Errorf("Provider(activity) = %v, %v", p, ok)
	}
	if !m.HasProvider("entity") || m.HasProvider("extend") {
		t.Error("HasProvider should report only configured scopes")
	}
}

func TestNewManager_rejectsInvalidScopes(t *testing.T) {
	for _, scopes := range [][]string{{"entity", "entity"}, {""}} {
		if _, err := NewManager(testRegistry(), scopes); err == nil {
			t.Errorf("NewManager(%q) should fail", scopes)
		}
	}
}

func TestFieldTypeProvider(t *testing.T) {
	p := NewFieldTypeProvider(config.DefaultFieldTypes())

	for typ, want := range map[string]bool{"string": true, "enum": true, "ref-one": false} {
		if got := p.IsSupported(typ); got != want {
			t.Errorf("IsSupported(%s) = %v, want %v", typ, got, want)
		}
	}
	if !slices.Contains(p.SupportedFieldTypes(), "integer") {
		t.Errorf("SupportedFieldTypes() = %v", p.SupportedFieldTypes())
	}

	props := p.FieldProperties("string")
	if got := props["extend"]["length"].Type; got != OptionInteger {
		t.Errorf("extend.length = %q", got)
	}
	if got := props["importexport"]["identity"].Type; got != OptionBoolean {
		t.Errorf("importexport.identity = %q", got)
	}

	props["extend"]["length"] = config.PropertyOption{Type: OptionString}
	if got := p.FieldProperties("string")["extend"]["length"].Type; got != OptionInteger {
		t.Errorf("FieldProperties shares state with callers: %q", got)
	}

	if props := p.FieldProperties("unknown"); len(props) != 0 {
		t.Errorf("FieldProperties(unknown) = %v", props)
	}
}
