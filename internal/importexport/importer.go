package importexport

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/entityconfig/model"
)

// FieldSaver persists field records.
type FieldSaver interface {
	SaveField(ctx context.Context, field *model.FieldConfigModel) error
}

// RowError reports a rejected import row. Row is 1-based and excludes the
// header line.
type RowError struct {
	Row     int                `json:"row"`
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Details []model.FieldError `json:"details,omitempty"`
}

// ImportResult summarizes an import job.
type ImportResult struct {
	Read     int        `json:"read"`
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors,omitempty"`
}

// Importer loads field records from a file into a store.
type Importer struct {
	normalizer *FieldNormalizer
	store      FieldSaver
	logger     *zap.Logger
	observer   RowObserver
}

// NewImporter creates an importer writing to store.
func NewImporter(normalizer *FieldNormalizer, store FieldSaver, logger *zap.Logger, observer RowObserver) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{normalizer: normalizer, store: store, logger: logger, observer: observer}
}

// Import parses payload in format and saves every supported row. Rows of
// unsupported field types are skipped. Rows failing validation or lookup
// are reported in the result; infrastructure errors abort the import.
func (i *Importer) Import(ctx context.Context, format string, payload []byte) (ImportResult, error) {
	rows, err := ParseRows(format, payload)
	if err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	for n, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Read++
		if !i.normalizer.SupportsDenormalization(row, model.FieldConfigModelClass) {
			res.Skipped++
			continue
		}

		field, err := i.normalizer.Denormalize(ctx, row)
		if err == nil && field.Entity == nil {
			err = model.NewBadRequestError(fmt.Sprintf("field %q has no entity", field.FieldName))
		}
		if err == nil {
			err = i.store.SaveField(ctx, field)
		}
		if err != nil {
			rowErr, ok := toRowError(n+1, err)
			if !ok {
				return res, fmt.Errorf("import row %d: %w", n+1, err)
			}
			i.logger.Warn("import row rejected",
				zap.Int("row", rowErr.Row),
				zap.String("code", rowErr.Code),
				zap.String("message", rowErr.Message),
			)
			res.Errors = append(res.Errors, rowErr)
			continue
		}
		res.Imported++
	}

	if i.observer != nil {
		i.observer.RecordImportExportRows(DirectionImport, "ok", res.Imported)
		i.observer.RecordImportExportRows(DirectionImport, "error", len(res.Errors))
	}
	i.logger.Info("field import completed",
		zap.String("format", format),
		zap.Int("read", res.Read),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped),
		zap.Int("rejected", len(res.Errors)),
	)
	return res, nil
}

func toRowError(row int, err error) (RowError, bool) {
	code := model.CodeOf(err)
	if code == "" || code == model.ErrInternalError {
		return RowError{}, false
	}
	re := RowError{Row: row, Code: code, Message: err.Error()}
	var env *model.ErrorEnvelope
	if errors.As(err, &env) {
		re.Details = env.Details
	}
	return re, true
}
