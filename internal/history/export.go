package history

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"time"

	"github.com/schoolbooks/admin-console/internal/audit"
	"github.com/schoolbooks/admin-console/internal/storage"
	"github.com/schoolbooks/admin-console/internal/telemetry"
)

// CSVHeader is the fixed header row of page exports.
var CSVHeader = []string{"ID", "Date", "User", "Action", "Entity Type", "Entity ID", "Description", "IP Address"}

// Export modes, used as the metrics "mode" label.
const (
	ExportModePage     = "page"
	ExportModeFiltered = "filtered"
)

// ExportResult describes a written export.
type ExportResult struct {
	Mode     string
	Filename string
	Location string
	// Rows is the number of data rows; -1 when the backend rendered the file.
	Rows     int
	Size     int64
	Checksum string
}

// maxExportsPerDay bounds the _<n> suffixes tried for one date.
const maxExportsPerDay = 100

// ExportFilename is audit_logs_<YYYY-MM-DD>.csv for the calendar date of now
// in its own location.
func ExportFilename(now time.Time) string {
	return exportName(now, 1)
}

// exportName is the n-th file name for now's date: the plain name first,
// then audit_logs_<date>_2.csv and so on.
func exportName(now time.Time, n int) string {
	if n <= 1 {
		return "audit_logs_" + now.Format(time.DateOnly) + ".csv"
	}
	return fmt.Sprintf("audit_logs_%s_%d.csv", now.Format(time.DateOnly), n)
}

// freeExportName returns the first name for now's date not yet present in
// sink, so a later export never replaces an earlier one.
func freeExportName(ctx context.Context, sink storage.Storage, now time.Time) (string, error) {
	for n := 1; n <= maxExportsPerDay; n++ {
		name := exportName(now, n)
		exists, err := sink.Exists(ctx, name)
		if err != nil {
			return "", &ExportError{Message: "failed to check " + name, Err: err}
		}
		if !exists {
			return name, nil
		}
	}
	return "", &ExportError{Message: fmt.Sprintf("more than %d exports for %s", maxExportsPerDay, now.Format(time.DateOnly))}
}

// ExportCSV renders records as CSV: the CSVHeader row, then one row per
// record in input order. Fields containing commas, quotes or line breaks are
// quoted; anything else is written exactly as given.
func ExportCSV(records []audit.Record) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Write only fails on the underlying writer, and bytes.Buffer does not.
	_ = w.Write(CSVHeader)
	for _, r := range records {
		_ = w.Write(csvRow(r))
	}
	w.Flush()
	return buf.String()
}

func csvRow(r audit.Record) []string {
	return []string{
		string(r.ID),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.Actor(),
		string(r.Action),
		string(r.EntityType),
		r.Entity(),
		r.Description,
		r.IPAddress,
	}
}

// ExportCurrentPageCSV writes the records currently displayed to sink.
func (v *View) ExportCurrentPageCSV(ctx context.Context, sink storage.Storage) (*ExportResult, error) {
	snap := v.Snapshot()
	body := ExportCSV(snap.Page.Records)

	res, err := v.writeExport(ctx, sink, ExportModePage, []byte(body))
	if err != nil {
		return nil, err
	}
	res.Rows = len(snap.Page.Records)
	return res, nil
}

// ExportFilteredCSV asks the backend for every record matching the current
// filter and saves the returned CSV unchanged.
func (v *View) ExportFilteredCSV(ctx context.Context, sink storage.Storage) (*ExportResult, error) {
	f := v.Filter()

	bctx, cancel := v.bind(ctx)
	data, err := v.api.ExportAuditLogs(bctx, f.Query())
	cancel()
	if err != nil {
		telemetry.ExportsTotal.WithLabelValues(ExportModeFiltered, "failed").Inc()
		if errors.Is(err, ErrAuthRequired) {
			return nil, ErrAuthRequired
		}
		return nil, &ExportError{Message: userMessage(err, "export request failed"), Err: err}
	}

	res, err := v.writeExport(ctx, sink, ExportModeFiltered, data)
	if err != nil {
		return nil, err
	}
	res.Rows = -1
	return res, nil
}

func (v *View) writeExport(ctx context.Context, sink storage.Storage, mode string, data []byte) (*ExportResult, error) {
	name, err := freeExportName(ctx, sink, v.opts.Now())
	if err != nil {
		telemetry.ExportsTotal.WithLabelValues(mode, "failed").Inc()
		v.log.Warn("export failed", "mode", mode, "error", err)
		return nil, err
	}

	up, err := sink.Upload(ctx, name, bytes.NewReader(data), int64(len(data)))
	if err == nil && up.Size != int64(len(data)) {
		err = fmt.Errorf("stored %d of %d bytes", up.Size, len(data))
		if delErr := sink.Delete(ctx, name); delErr != nil {
			v.log.Error("failed to remove short export", "file", name, "error", delErr)
		}
	}
	if err != nil {
		telemetry.ExportsTotal.WithLabelValues(mode, "failed").Inc()
		v.log.Warn("export failed", "mode", mode, "file", name, "error", err)
		return nil, &ExportError{Message: "failed to write " + name, Err: err}
	}

	telemetry.ExportsTotal.WithLabelValues(mode, "success").Inc()
	v.log.Info("export written", "mode", mode, "file", name, "bytes", up.Size)
	return &ExportResult{
		Mode:     mode,
		Filename: name,
		Location: sink.Location(name),
		Size:     up.Size,
		Checksum: up.Checksum,
	}, nil
}
