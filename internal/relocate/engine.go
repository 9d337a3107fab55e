// Package relocate places recognized files into per-identity destinations
// with checksum verification. A user's original is never removed before its
// copy verified, and a corrupt copy is never left behind.
package relocate

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Operation is the kind of file placement.
type Operation string

const (
	OpCopy Operation = "COPY"
	OpMove Operation = "MOVE"
)

// Result describes a completed placement.
type Result struct {
	DestinationPath string
	Checksum        string
	Size            int64
}

// Engine performs verified copy/move operations. Safe for concurrent use;
// destination names are reserved under a lock so no two placements in a run
// resolve to the same path.
type Engine struct {
	baseDir      string
	destinations map[string]string // identity -> custom destination directory

	audit  *AuditLog
	logger *slog.Logger

	mu       sync.Mutex
	reserved map[string]bool
}

// NewEngine creates a relocation engine. destinations may be nil; identities
// without a custom destination go to baseDir/<identity>. audit may be nil,
// in which case placements are not recorded.
func NewEngine(baseDir string, destinations map[string]string, audit *AuditLog, logger *slog.Logger) *Engine {
	return &Engine{
		baseDir:      baseDir,
		destinations: destinations,
		audit:        audit,
		logger:       logger,
		reserved:     make(map[string]bool),
	}
}

// AuditPath returns the location of the run's audit trail.
func (e *Engine) AuditPath() string {
	if e.audit == nil {
		return ""
	}
	return e.audit.Path()
}

// DestinationDir resolves the output directory for an identity.
func (e *Engine) DestinationDir(identityName string) string {
	if dir, ok := e.destinations[identityName]; ok && dir != "" {
		return dir
	}
	return filepath.Join(e.baseDir, identityName)
}

// Place copies or moves sourcePath into the identity's destination
// directory. For a move, the source is removed only after the destination
// existence, size and checksum all verified; a failed removal of a verified
// original is reported as success with a warning, since the copy is complete.
func (e *Engine) Place(sourcePath, identityName string, confidence float64, op Operation) (Result, error) {
	destDir := e.DestinationDir(identityName)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create destination directory %s: %w", destDir, err)
	}

	dest, err := e.reserveDestination(filepath.Join(destDir, filepath.Base(sourcePath)))
	if err != nil {
		return Result{}, err
	}
	placed := false
	defer func() {
		if !placed {
			e.releaseDestination(dest)
		}
	}()

	// Source checksum is computed before the copy so the verification
	// baseline cannot be influenced by the copy itself.
	sourceInfo, err := os.Stat(sourcePath)
	if err != nil {
		return Result{}, e.fail(op, sourcePath, dest, identityName, confidence, fmt.Errorf("source file not accessible: %w", err))
	}
	sourceSum, err := Checksum(sourcePath)
	if err != nil {
		return Result{}, e.fail(op, sourcePath, dest, identityName, confidence, fmt.Errorf("failed to checksum source: %w", err))
	}

	if err := copyFile(sourcePath, dest, sourceInfo); err != nil {
		return Result{}, e.fail(op, sourcePath, dest, identityName, confidence, fmt.Errorf("copy failed: %w", err))
	}

	if err := e.verifyCopy(dest, sourceInfo.Size(), sourceSum); err != nil {
		return Result{}, e.fail(op, sourcePath, dest, identityName, confidence, err)
	}

	if op == OpMove {
		if err := os.Remove(sourcePath); err != nil {
			// The copy is valid and complete; only cleanup failed.
			e.logger.Warn("verified copy complete but original could not be removed",
				"source", sourcePath, "destination", dest, "error", err)
		}
	}

	placed = true
	result := Result{DestinationPath: dest, Checksum: sourceSum, Size: sourceInfo.Size()}
	e.record(Record{
		Timestamp:       time.Now(),
		Operation:       op,
		SourcePath:      sourcePath,
		DestinationPath: dest,
		Identity:        identityName,
		Confidence:      confidence,
		FileSize:        result.Size,
		Checksum:        result.Checksum,
		Status:          StatusSuccess,
	})
	return result, nil
}

// fail records a failed attempt in the audit trail and passes the error
// through. Audit problems never mask the relocation error.
func (e *Engine) fail(op Operation, source, dest, identityName string, confidence float64, err error) error {
	size := int64(0)
	if info, statErr := os.Stat(source); statErr == nil {
		size = info.Size()
	}
	e.record(Record{
		Timestamp:       time.Now(),
		Operation:       op,
		SourcePath:      source,
		DestinationPath: dest,
		Identity:        identityName,
		Confidence:      confidence,
		FileSize:        size,
		Status:          StatusFailed,
	})
	return err
}

// record writes an audit entry when the engine has an audit log.
func (e *Engine) record(rec Record) {
	if e.audit == nil {
		return
	}
	e.audit.Record(rec)
}

// verifyCopy verifies the copied destination and removes it on failure, so a
// corrupt file is never left in the destination tree.
func (e *Engine) verifyCopy(dest string, wantSize int64, wantSum string) error {
	err := e.verify(dest, wantSize, wantSum)
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
			e.logger.Error("failed to remove corrupt destination", "path", dest, "error", rmErr)
		}
	}
	return err
}

// verify checks that the destination exists and matches the source size and
// checksum captured before the copy.
func (e *Engine) verify(dest string, wantSize int64, wantSum string) error {
	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("destination missing after copy: %w", err)
	}
	if info.Size() != wantSize {
		return fmt.Errorf("size mismatch after copy: got %d, want %d", info.Size(), wantSize)
	}
	sum, err := Checksum(dest)
	if err != nil {
		return fmt.Errorf("failed to checksum destination: %w", err)
	}
	if sum != wantSum {
		return fmt.Errorf("checksum mismatch after copy: got %s, want %s", sum, wantSum)
	}
	return nil
}

// copyFile copies contents and preserves mode and modification time.
func copyFile(source, dest string, sourceInfo os.FileInfo) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, sourceInfo.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Chtimes(dest, time.Now(), sourceInfo.ModTime())
}

// Checksum computes the MD5 checksum of a file. MD5 is used for transfer
// verification, not security.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
