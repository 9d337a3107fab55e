// Package sorter is the batch orchestrator: it enumerates input files,
// dispatches fixed-size batches to a worker pool, aggregates per-file
// outcomes into run statistics and drives the fingerprint cache.
package sorter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/face-sorter/internal/cache"
	"github.com/kozaktomas/face-sorter/internal/identity"
	"github.com/kozaktomas/face-sorter/internal/match"
	"github.com/kozaktomas/face-sorter/internal/relocate"
	"github.com/kozaktomas/face-sorter/internal/vision"
)

// ErrNoIdentities aborts a run before any file is touched: with nothing
// enrolled there is nothing to match against.
var ErrNoIdentities = errors.New("no identities enrolled")

// persistEvery bounds how many unsaved cache entries may accumulate before
// an intermediate persist.
const persistEvery = 500

// Options control one sorting run.
type Options struct {
	RunID        string // optional; generated when empty
	InputDir     string
	Recursive    bool
	Model        string
	Tolerance    float64
	Priority     []string
	MinFaceSize  int
	MaxImageSize int
	BatchSize    int
	Workers      int
	Move         bool
	AgeMatching  bool
	AgeTolerance int
	ShowProgress bool
	OnProgress   func(processed, total int) // optional observer, must not affect correctness
}

// Sorter coordinates one run. Statistics and cache writes happen only in the
// aggregation loop; workers read shared state but never mutate it.
type Sorter struct {
	adapter    vision.Adapter
	identities *identity.Set
	matcher    *match.Matcher
	cache      *cache.Cache
	engine     *relocate.Engine
	logger     *slog.Logger
}

// New wires a sorter from its collaborators.
func New(adapter vision.Adapter, identities *identity.Set, c *cache.Cache, engine *relocate.Engine, logger *slog.Logger) *Sorter {
	return &Sorter{
		adapter:    adapter,
		identities: identities,
		matcher:    match.New(identities),
		cache:      c,
		engine:     engine,
		logger:     logger,
	}
}

type outcomeKind int

const (
	outcomeRecognized outcomeKind = iota
	outcomeUnrecognized
	outcomeError
)

// fileOutcome is the single result every input file resolves to. Cache
// entries travel with the outcome so only the aggregation loop writes the
// cache.
type fileOutcome struct {
	path       string
	outcome    outcomeKind
	identity   string
	confidence float64
	cacheKey   string
	cacheEntry *cache.Entry
	err        error
}

// Run sorts every image in the input directory and returns the aggregated
// statistics. Per-file failures are contained and counted; only
// configuration problems abort the run.
func (s *Sorter) Run(ctx context.Context, opts Options) (*Stats, error) {
	if s.identities.Len() == 0 {
		return nil, ErrNoIdentities
	}

	files, skipped, err := listImages(opts.InputDir, opts.Recursive)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate input directory: %w", err)
	}
	s.warnSkipped(skipped)

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	stats := newStats(runID, len(files))
	stats.AuditLogPath = s.engine.AuditPath()
	start := time.Now()

	if len(files) == 0 {
		s.logger.Warn("no image files found", "dir", opts.InputDir)
		stats.Elapsed = time.Since(start)
		return stats, nil
	}

	batchList := batches(files, opts.BatchSize)
	workers := max(opts.Workers, 1)
	s.logger.Info("starting run",
		"run_id", runID,
		"files", len(files),
		"batches", len(batchList),
		"batch_size", opts.BatchSize,
		"workers", workers,
		"move", opts.Move)

	jobs := make(chan []string)
	results := make(chan fileOutcome, workers*max(opts.BatchSize, 1))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				s.processBatch(ctx, batch, results, opts)
			}
		}()
	}

	// Batches are submitted in input order; completions may interleave.
	go func() {
		defer close(jobs)
		for _, batch := range batchList {
			select {
			case jobs <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	s.aggregate(results, stats, len(files), opts)

	if err := s.cache.Persist(); err != nil {
		s.logger.Error("failed to persist fingerprint cache", "error", err)
	}

	stats.Reconcile()
	if stats.Reconciled {
		s.logger.Warn("statistics mismatch repaired: trusting processed count over enumerated count",
			"processed", stats.Processed())
	}
	stats.Elapsed = time.Since(start)

	s.logger.Info("run finished",
		"run_id", runID,
		"total", stats.Total,
		"recognized", stats.Recognized,
		"unrecognized", stats.Unrecognized,
		"errors", stats.Errors,
		"elapsed", stats.Elapsed.Round(time.Millisecond))
	return stats, nil
}

// aggregate is the single writer for statistics and the fingerprint cache.
func (s *Sorter) aggregate(results <-chan fileOutcome, stats *Stats, total int, opts Options) {
	var bar *progressbar.ProgressBar
	if opts.ShowProgress {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Sorting images"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	processed := 0
	for o := range results {
		stats.record(o)
		if o.cacheEntry != nil {
			s.cache.Store(o.cacheKey, *o.cacheEntry)
		}
		if o.err != nil {
			s.logger.Error("file failed", "path", o.path, "error", o.err)
		}

		processed++
		if bar != nil {
			_ = bar.Add(1)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(processed, total)
		}

		if s.cache.Dirty() >= persistEvery {
			if err := s.cache.Persist(); err != nil {
				s.logger.Error("failed to persist fingerprint cache", "error", err)
			}
		}
	}
	if bar != nil {
		fmt.Println()
	}
}

// processBatch resolves every file of one batch to exactly one outcome. A
// batch-level failure becomes per-file error outcomes instead of aborting
// the run.
func (s *Sorter) processBatch(ctx context.Context, batch []string, results chan<- fileOutcome, opts Options) {
	done := 0
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("batch processing failed: %v", r)
			for _, path := range batch[done:] {
				results <- fileOutcome{path: path, outcome: outcomeError, err: err}
			}
		}
	}()

	for _, path := range batch {
		if ctx.Err() != nil {
			results <- fileOutcome{path: path, outcome: outcomeError, err: ctx.Err()}
		} else {
			results <- s.processFile(ctx, path, opts)
		}
		done++
	}
}

// processFile runs the cache short-circuit, detection, matching and
// relocation for a single file.
func (s *Sorter) processFile(ctx context.Context, path string, opts Options) fileOutcome {
	key := cache.Key(path)

	if entry, ok := s.cache.Lookup(key); ok {
		switch entry.Kind {
		case cache.KindDecision:
			if entry.Matched {
				return fileOutcome{path: path, outcome: outcomeRecognized, identity: entry.Identity, confidence: entry.Confidence}
			}
			return fileOutcome{path: path, outcome: outcomeUnrecognized}
		case cache.KindNegative:
			return fileOutcome{path: path, outcome: outcomeUnrecognized}
		case cache.KindEmbedding:
			// Detection already ran for this fingerprint; only match and place.
			return s.matchAndPlace(path, key, []vision.Detection{{Embedding: entry.Embedding}}, opts)
		}
	}

	data, err := vision.LoadForProcessing(path, opts.MaxImageSize)
	if err != nil {
		return fileOutcome{path: path, outcome: outcomeError, err: err}
	}

	detections, err := s.adapter.DetectFaces(ctx, data, opts.Model)
	if err != nil {
		return fileOutcome{path: path, outcome: outcomeError, err: fmt.Errorf("face detection failed: %w", err)}
	}

	detections = vision.FilterBySize(detections, opts.MinFaceSize)
	if len(detections) == 0 {
		return fileOutcome{
			path:       path,
			outcome:    outcomeUnrecognized,
			cacheKey:   key,
			cacheEntry: &cache.Entry{Kind: cache.KindNegative},
		}
	}

	return s.matchAndPlace(path, key, detections, opts)
}

// matchAndPlace resolves the best identity across all detected faces and
// relocates the file on a match.
func (s *Sorter) matchAndPlace(path, key string, detections []vision.Detection, opts Options) fileOutcome {
	var photoDate time.Time
	if opts.AgeMatching {
		if date, ok := vision.TakenDate(path); ok {
			photoDate = date
		}
	}

	best := match.Result{}
	for _, det := range detections {
		mopts := match.Options{Tolerance: opts.Tolerance, Priority: opts.Priority}
		if opts.AgeMatching {
			mopts.Age = &match.AgeContext{
				PhotoDate:    photoDate,
				EstimatedAge: det.Age,
				Tolerance:    opts.AgeTolerance,
			}
		}
		r := s.matcher.Match(det.Embedding, mopts)
		if !r.Matched() {
			continue
		}
		if !best.Matched() || betterResult(r, best, opts.Priority) {
			best = r
		}
	}

	if !best.Matched() {
		return fileOutcome{
			path:       path,
			outcome:    outcomeUnrecognized,
			cacheKey:   key,
			cacheEntry: &cache.Entry{Kind: cache.KindDecision, Matched: false},
		}
	}

	op := relocate.OpCopy
	if opts.Move {
		op = relocate.OpMove
	}
	if _, err := s.engine.Place(path, best.Identity, best.Confidence, op); err != nil {
		// No cache entry: a relocation failure is worth retrying next run.
		return fileOutcome{path: path, outcome: outcomeError, err: fmt.Errorf("relocation failed: %w", err)}
	}

	return fileOutcome{
		path:       path,
		outcome:    outcomeRecognized,
		identity:   best.Identity,
		confidence: best.Confidence,
		cacheKey:   key,
		cacheEntry: &cache.Entry{Kind: cache.KindDecision, Matched: true, Identity: best.Identity, Confidence: best.Confidence},
	}
}

// betterResult decides between matches from different faces of the same
// image: lower priority index wins when a priority order is set, otherwise
// higher confidence.
func betterResult(a, b match.Result, priority []string) bool {
	if len(priority) > 0 {
		return priorityIndex(a.Identity, priority) < priorityIndex(b.Identity, priority)
	}
	return a.Confidence > b.Confidence
}

func priorityIndex(name string, priority []string) int {
	for i, p := range priority {
		if p == name {
			return i
		}
	}
	return len(priority)
}

// warnSkipped surfaces images a non-recursive run will not process.
func (s *Sorter) warnSkipped(skipped []skippedDir) {
	if len(skipped) == 0 {
		return
	}
	total := 0
	for _, d := range skipped {
		total += d.images
	}
	s.logger.Warn("subdirectories contain images that will be skipped; use recursive mode to include them",
		"subdirectories", len(skipped), "images", total)
	for i, d := range skipped {
		if i == 5 {
			s.logger.Warn("more subdirectories skipped", "count", len(skipped)-5)
			break
		}
		s.logger.Warn("skipping subdirectory", "dir", d.relPath, "images", d.images)
	}
}
