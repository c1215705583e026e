package importexport

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/pitabwire/entityconfig/internal/config"
	"github.com/pitabwire/entityconfig/internal/entityconfig"
	"github.com/pitabwire/entityconfig/internal/store"
	"github.com/pitabwire/entityconfig/model"
)

var account = model.EntityConfigModel{ID: 1, ClassName: `Acme\Account`}

type rowCounter map[string]int

func (c rowCounter) RecordImportExportRows(direction, status string, rows int) {
	c[direction+"/"+status] += rows
}

type failingSaver struct{}

func (failingSaver) SaveField(context.Context, *model.FieldConfigModel) error {
	return errors.New("connection refused")
}

func newStore(t *testing.T, fields ...*model.FieldConfigModel) *store.MemoryFieldStore {
	t.Helper()
	s := store.NewMemoryFieldStore()
	if err := s.SaveEntity(context.Background(), account); err != nil {
		t.Fatal(err)
	}
	for _, f := range fields {
		if err := s.SaveField(context.Background(), f); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func sampleFields() []*model.FieldConfigModel {
	name := &model.FieldConfigModel{ID: 10, FieldName: "name", Type: "string", Entity: &account}
	name.FromArray("entity", map[string]any{"label": "Name"})
	name.FromArray("importexport", map[string]any{"order": 1})

	status := &model.FieldConfigModel{ID: 11, FieldName: "status", Type: "enum", Entity: &account}
	status.FromArray("entity", map[string]any{"label": "Status"})
	status.FromArray("enum", map[string]any{"enum_options": []map[string]any{
		{"label": "Active", "is_default": true},
		{"label": "Closed", "is_default": false},
	}})
	return []*model.FieldConfigModel{name, status}
}

func newNormalizer(entities EntityLoader) *FieldNormalizer {
	return NewFieldNormalizer(
		scopeList{"entity", "importexport", "enum", "extend"},
		entityconfig.NewFieldTypeProvider(config.DefaultFieldTypes()),
		entities,
	)
}

func newExporter(s *store.MemoryFieldStore, observer RowObserver) *Exporter {
	repositories := map[string]Query{model.FieldConfigModelClass: FieldQuery(s)}
	return NewExporter(repositories, newNormalizer(s), 1, nil, observer)
}

func TestExport_csv(t *testing.T) {
	s := newStore(t, sampleFields()...)
	observer := rowCounter{}

	var buf bytes.Buffer
	res, err := newExporter(s, observer).Export(context.Background(), FormatCSV, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if want := (ExportResult{Read: 2, Written: 2}); !reflect.DeepEqual(res, want) {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if observer["export/ok"] != 2 {
		t.Errorf("exported rows observed = %d, want 2", observer["export/ok"])
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"id,fieldName,type,entity.id,entity.label," +
			"enum.enum_options.0.is_default,enum.enum_options.0.label," +
			"enum.enum_options.1.is_default,enum.enum_options.1.label,importexport.order",
		"10,name,string,1,Name,,,,,1",
		"11,status,enum,1,Status,true,Active,false,Closed,",
	}
	if !slices.Equal(lines, want) {
		t.Errorf("csv =\n%s\nwant\n%s", strings.Join(lines, "\n"), strings.Join(want, "\n"))
	}
}

func TestExport_unsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	_, err := newExporter(newStore(t), nil).Export(context.Background(), "pdf", &buf)
	if model.CodeOf(err) != model.ErrBadRequest {
		t.Errorf("err = %v, want BAD_REQUEST", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes", buf.Len())
	}
}

func TestExportImport_roundTrip(t *testing.T) {
	for _, format := range []string{FormatCSV, FormatXLSX} {
		t.Run(format, func(t *testing.T) {
			ctx := context.Background()
			var buf bytes.Buffer
			if _, err := newExporter(newStore(t, sampleFields()...), nil).Export(ctx, format, &buf); err != nil {
				t.Fatal(err)
			}

			target := newStore(t)
			res, err := NewImporter(newNormalizer(target), target, nil, nil).Import(ctx, format, buf.Bytes())
			if err != nil {
				t.Fatal(err)
			}
			if want := (ImportResult{Read: 2, Imported: 2}); !reflect.DeepEqual(res, want) {
				t.Errorf("result = %+v, want %+v", res, want)
			}

			fields, err := target.ListFields(ctx, 0, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(fields) != 2 {
				t.Fatalf("stored %d fields, want 2", len(fields))
			}

			wantName := map[string]map[string]any{
				"entity":       {"label": "Name"},
				"importexport": {"order": 1},
			}
			if fields[0].ID != 10 || !reflect.DeepEqual(fields[0].Scopes, wantName) {
				t.Errorf("name = %d %v", fields[0].ID, fields[0].Scopes)
			}

			status := fields[1]
			if status.ID != 11 || status.Entity.ClassName != `Acme\Account` || status.Scopes["entity"]["label"] != "Status" {
				t.Errorf("status = %d %s %v", status.ID, status.Entity.ClassName, status.Scopes["entity"])
			}
			wantOptions := []map[string]any{
				{"label": "Active", "is_default": true},
				{"label": "Closed", "is_default": false},
			}
			if got := status.Scopes["enum"]["enum_options"]; !reflect.DeepEqual(got, wantOptions) {
				t.Errorf("enum options = %v, want %v", got, wantOptions)
			}
		})
	}
}

func TestImport_rowErrors(t *testing.T) {
	payload := "\xEF\xBB\xBF" + `id,fieldName,type,entity.id,enum.enum_options.0.label
,name,string,1,
,status,enum,1,+

,ghost,string,99,
,blob,unsupported,1,
,orphan,string,,
`
	target := newStore(t)
	observer := rowCounter{}

	res, err := NewImporter(newNormalizer(target), target, nil, observer).
		Import(context.Background(), FormatCSV, []byte(payload))
	if err != nil {
		t.Fatal(err)
	}

	if res.Read != 5 || res.Imported != 1 || res.Skipped != 1 {
		t.Errorf("read/imported/skipped = %d/%d/%d, want 5/1/1", res.Read, res.Imported, res.Skipped)
	}
	if len(res.Errors) != 3 {
		t.Fatalf("errors = %+v, want 3", res.Errors)
	}

	wantErrors := []struct {
		row  int
		code string
	}{
		{2, model.ErrValidationError},
		{3, model.ErrNotFound},
		{5, model.ErrBadRequest},
	}
	for i, want := range wantErrors {
		if got := res.Errors[i]; got.Row != want.row || got.Code != want.code {
			t.Errorf("error %d = row %d %s, want row %d %s", i, got.Row, got.Code, want.row, want.code)
		}
	}
	if d := res.Errors[0].Details; len(d) != 1 || d[0].Field != "enum.enum_options.0.label" {
		t.Errorf("details = %+v", d)
	}

	if observer["import/ok"] != 1 || observer["import/error"] != 3 {
		t.Errorf("observed = %v", observer)
	}

	count, err := target.CountFields(context.Background())
	if err != nil || count != 1 {
		t.Errorf("CountFields() = %d, %v; want 1", count, err)
	}
}

func TestImport_storeFailureAborts(t *testing.T) {
	s := newStore(t)
	payload := "fieldName,type,entity.id\nname,string,1\n"

	_, err := NewImporter(newNormalizer(s), failingSaver{}, nil, nil).
		Import(context.Background(), FormatCSV, []byte(payload))
	if err == nil {
		t.Fatal("Import() should fail when the store does")
	}
	for _, want := range []string{"import row 1", "connection refused"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q lacks %q", err, want)
		}
	}
}

func TestImport_malformed(t *testing.T) {
	s := newStore(t)
	imp := NewImporter(newNormalizer(s), s, nil, nil)

	tests := []struct {
		format  string
		payload string
	}{
		{FormatXLSX, "not a workbook"},
		{FormatCSV, "\n\n"},
	}
	for _, tt := range tests {
		_, err := imp.Import(context.Background(), tt.format, []byte(tt.payload))
		if model.CodeOf(err) != model.ErrBadRequest {
			t.Errorf("%s %q: err = %v, want BAD_REQUEST", tt.format, tt.payload, err)
		}
	}
}

func TestFlattenAndHeader(t *testing.T) {
	row := Flatten(map[string]any{
		"id":         int64(3),
		"fieldName":  "f",
		"enum.opts":  []any{map[string]any{"label": "A"}},
		"extend.tag": []any{"x", "y"},
		"flag":       true,
	})
	want := map[string]string{
		"id":                "3",
		"fieldName":         "f",
		"enum.opts.0.label": "A",
		"extend.tag":        `["x","y"]`,
		"flag":              "true",
	}
	if !maps.Equal(row, want) {
		t.Errorf("Flatten() = %v, want %v", row, want)
	}

	wantHeader := []string{"id", "fieldName", "type", "entity.id", "enum.opts.0.label", "extend.tag", "flag"}
	if got := Header([]map[string]string{row}); !slices.Equal(got, wantHeader) {
		t.Errorf("Header() = %v, want %v", got, wantHeader)
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType(FormatCSV); got != "text/csv; charset=utf-8" {
		t.Errorf("csv = %q", got)
	}
	if got := ContentType(FormatXLSX); !strings.Contains(got, "spreadsheetml") {
		t.Errorf("xlsx = %q", got)
	}
	if got := ContentType("pdf"); got != "" {
		t.Errorf("pdf = %q, want empty", got)
	}
}
