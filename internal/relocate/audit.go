package relocate

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Audit record statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Record is one row of the append-only audit trail. Rows are written in
// operation completion order, not input order.
type Record struct {
	Timestamp       time.Time
	Operation       Operation
	SourcePath      string
	DestinationPath string
	Identity        string
	Confidence      float64
	FileSize        int64
	Checksum        string
	Status          string
}

var auditHeader = []string{
	"Timestamp", "Operation", "SourcePath", "DestinationPath",
	"Person", "Confidence", "FileSize", "Checksum", "Status",
}

// AuditLog is the per-run CSV trail of every attempted file operation. Write
// failures are logged, never propagated: losing an audit row must not fail a
// relocation that already succeeded.
type AuditLog struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
	logger *slog.Logger
}

// OpenAuditLog creates a timestamped audit log in dir. The handle stays open
// for the run's lifetime; rows are flushed as they are written.
func OpenAuditLog(dir, runID string, logger *slog.Logger) (*AuditLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	name := fmt.Sprintf("FILE_MOVE_LOG_%s.csv", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{}, auditHeader...)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write audit log header: %w", err)
	}
	if err := w.Write([]string{time.Now().Format(time.RFC3339), "RUN", runID, "", "", "", "", "", "STARTED"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write audit run marker: %w", err)
	}
	w.Flush()

	return &AuditLog{path: path, file: f, writer: w, logger: logger}, nil
}

// Path returns the audit log location.
func (a *AuditLog) Path() string {
	return a.path
}

// Record appends one row. Serialized internally because operations complete
// on different workers.
func (a *AuditLog) Record(r Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row := []string{
		r.Timestamp.Format("2006-01-02 15:04:05"),
		string(r.Operation),
		r.SourcePath,
		r.DestinationPath,
		orUnknown(r.Identity),
		formatConfidence(r.Confidence),
		strconv.FormatInt(r.FileSize, 10),
		r.Checksum,
		r.Status,
	}
	if err := a.writer.Write(row); err != nil {
		a.logger.Error("failed to write audit log row", "path", a.path, "error", err)
		return
	}
	a.writer.Flush()
	if err := a.writer.Error(); err != nil {
		a.logger.Error("failed to flush audit log", "path", a.path, "error", err)
	}
}

// Close flushes and closes the audit log file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.writer.Flush()
	if err := a.writer.Error(); err != nil {
		a.file.Close()
		return err
	}
	return a.file.Close()
}

// ReadAuditLog parses an audit log back into records, skipping the header
// and run marker. Used by tests and post-run inspection; rows that do not
// parse are skipped rather than failing the read.
func ReadAuditLog(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse audit log: %w", err)
	}

	var records []Record
	for _, row := range rows {
		if len(row) != len(auditHeader) || row[0] == auditHeader[0] || row[1] == "RUN" {
			continue
		}
		ts, err := time.ParseInLocation("2006-01-02 15:04:05", row[0], time.Local)
		if err != nil {
			continue
		}
		confidence, _ := strconv.ParseFloat(row[5], 64)
		size, _ := strconv.ParseInt(row[6], 10, 64)
		identity := row[4]
		if identity == "UNKNOWN" {
			identity = ""
		}
		records = append(records, Record{
			Timestamp:       ts,
			Operation:       Operation(row[1]),
			SourcePath:      row[2],
			DestinationPath: row[3],
			Identity:        identity,
			Confidence:      confidence,
			FileSize:        size,
			Checksum:        row[7],
			Status:          row[8],
		})
	}
	return records, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func formatConfidence(c float64) string {
	if c == 0 {
		return ""
	}
	return strconv.FormatFloat(c, 'f', 4, 64)
}
