package importexport

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/pitabwire/entityconfig/model"
)

// Import/export directions reported to a RowObserver.
const (
	DirectionImport = "import"
	DirectionExport = "export"
)

// RowObserver counts rows processed by import and export jobs.
type RowObserver interface {
	RecordImportExportRows(direction, status string, rows int)
}

// ExportResult summarizes an export job.
type ExportResult struct {
	Read    int `json:"read"`
	Written int `json:"written"`
}

// Exporter streams the stored field records into a file.
type Exporter struct {
	repositories map[string]Query
	normalizer   *FieldNormalizer
	batchSize    int
	logger       *zap.Logger
	observer     RowObserver
}

// NewExporter creates an exporter reading from repositories.
func NewExporter(repositories map[string]Query, normalizer *FieldNormalizer, batchSize int, logger *zap.Logger, observer RowObserver) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		repositories: repositories,
		normalizer:   normalizer,
		batchSize:    batchSize,
		logger:       logger,
		observer:     observer,
	}
}

// Export writes every field record to w in format.
func (e *Exporter) Export(ctx context.Context, format string, w io.Writer) (ExportResult, error) {
	writer, err := WriterFor(format)
	if err != nil {
		return ExportResult{}, err
	}

	contexts := NewContextRegistry()
	step := NewStepExecution()
	defer contexts.Release(step)
	contexts.ByStepExecution(step).SetOption(OptionEntityName, model.FieldConfigModelClass)

	reader := NewReader(e.repositories, contexts, e.batchSize)
	if err := reader.SetStepExecution(step); err != nil {
		return ExportResult{}, err
	}

	var rows []map[string]string
	for {
		item, err := reader.Read(ctx, step)
		if err != nil {
			return ExportResult{Read: step.ReadCount()}, err
		}
		if item == nil {
			break
		}
		if !e.normalizer.SupportsNormalization(item) {
			continue
		}
		field := item.(*model.FieldConfigModel)
		row := e.normalizer.Normalize(field)
		if field.Entity != nil {
			row[KeyEntityID] = field.Entity.ID
		}
		rows = append(rows, Flatten(row))
		step.IncrementWriteCount()
	}

	if err := writer.Write(w, Header(rows), rows); err != nil {
		return ExportResult{Read: step.ReadCount()}, err
	}

	res := ExportResult{Read: step.ReadCount(), Written: step.WriteCount()}
	if e.observer != nil {
		e.observer.RecordImportExportRows(DirectionExport, "ok", res.Written)
	}
	e.logger.Info("field export completed",
		zap.String("step_id", step.ID()),
		zap.String("format", format),
		zap.Int("read", res.Read),
		zap.Int("written", res.Written),
	)
	return res, nil
}

// ContentType returns the MIME type of format, or "" if unsupported.
func ContentType(format string) string {
	w, err := WriterFor(format)
	if err != nil {
		return ""
	}
	return w.ContentType()
}
