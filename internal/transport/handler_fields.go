package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/pitabwire/entityconfig/internal/importexport"
	"github.com/pitabwire/entityconfig/model"
)

// FieldExporter writes the stored field configs in a file format.
type FieldExporter interface {
	Export(ctx context.Context, format string, w io.Writer) (importexport.ExportResult, error)
}

// FieldImporter reads field configs from a file.
type FieldImporter interface {
	Import(ctx context.Context, format string, payload []byte) (importexport.ImportResult, error)
}

func formatParam(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return f
	}
	return importexport.FormatCSV
}

func handleExportFields(exporter FieldExporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := formatParam(r)

		// Buffered so a failed export still yields a JSON error.
		var buf bytes.Buffer
		if _, err := exporter.Export(r.Context(), format, &buf); err != nil {
			WriteError(w, err)
			return
		}

		w.Header().Set("Content-Type", importexport.ContentType(format))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "fields."+format))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

func handleImportFields(importer FieldImporter, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := r.Body
		if maxBytes > 0 {
			body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		payload, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(w, model.NewBadRequestError(fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)))
				return
			}
			WriteError(w, model.NewBadRequestError("unable to read upload"))
			return
		}
		if len(payload) == 0 {
			WriteError(w, model.NewBadRequestError("upload is empty"))
			return
		}

		res, err := importer.Import(r.Context(), formatParam(r), payload)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}
