// Package schedule provides optional cron-driven periodic re-ingestion of a
// watched document directory, the recurring-work counterpart to the
// on-demand generation request (§4.4 describes ingestion as a pipeline but
// leaves production scheduling unspecified). It wraps robfig/cron the same
// way the teacher's SchedulerService does, trimmed to the one recurring job
// this repo actually needs.
package schedule

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/extract"
	"github.com/soochol/actionplan/internal/ingest"
)

// docTypeByExt maps a watched file's extension to ingest.Source.Type.
var docTypeByExt = map[string]string{
	".md":       "markdown",
	".markdown": "markdown",
	".txt":      "text",
	".pdf":      "text",
}

// extractContentType maps a watched file's extension to the MIME type
// internal/extract.Extract dispatches on. PDFs need text pulled out of
// the binary before the document tree producer can parse headings out of
// it; everything else passes through untouched.
var extractContentType = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".pdf":      "application/pdf",
}

// Watcher re-scans cfg.Scheduler.WatchDir on cfg.Scheduler.CronSpec and
// re-ingests every file it finds, so documents dropped into the directory
// reach the knowledge graph without a restart.
type Watcher struct {
	cfg      *config.Config
	ingester *ingest.Ingester
	cron     *cron.Cron

	mu       sync.Mutex
	lastRun  map[string]time.Time
}

func NewWatcher(cfg *config.Config, ingester *ingest.Ingester) *Watcher {
	return &Watcher{
		cfg:      cfg,
		ingester: ingester,
		cron:     cron.New(),
		lastRun:  map[string]time.Time{},
	}
}

// Start registers the watch job and starts the cron scheduler. It is a
// no-op if scheduling is disabled in configuration.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.Scheduler.Enabled {
		slog.Info("schedule: watcher disabled, skipping")
		return nil
	}
	if w.cfg.Scheduler.WatchDir == "" {
		slog.Warn("schedule: watcher enabled but no watch_dir configured, skipping")
		return nil
	}

	spec := w.cfg.Scheduler.CronSpec
	if spec == "" {
		spec = "0 3 * * *"
	}

	_, err := w.cron.AddFunc(spec, func() {
		w.scan(ctx)
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	slog.Info("schedule: watcher started", "dir", w.cfg.Scheduler.WatchDir, "cron", spec)
	return nil
}

// Stop drains any in-flight job and stops the cron scheduler.
func (w *Watcher) Stop() {
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	slog.Info("schedule: watcher stopped")
}

// scan walks the watch directory and re-ingests every recognized document.
// A document already ingested with an unchanged modtime is skipped, so a
// recurring scan only pays the LLM summarization/embedding cost for files
// that actually changed.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Scheduler.WatchDir)
	if err != nil {
		slog.Warn("schedule: watch dir read failed", "dir", w.cfg.Scheduler.WatchDir, "err", err)
		return
	}

	var sources []ingest.Source
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		docType, ok := docTypeByExt[ext]
		if !ok {
			continue
		}

		path := filepath.Join(w.cfg.Scheduler.WatchDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			slog.Warn("schedule: stat failed", "path", path, "err", err)
			continue
		}

		if !w.changedSince(path, info.ModTime()) {
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			slog.Warn("schedule: open failed", "path", path, "err", err)
			continue
		}
		text, err := extract.Extract(extractContentType[ext], f)
		f.Close()
		if err != nil {
			slog.Warn("schedule: extract failed", "path", path, "err", err)
			continue
		}

		sources = append(sources, ingest.Source{
			Name:       strings.TrimSuffix(entry.Name(), ext),
			SourcePath: path,
			Type:       docType,
			Text:       text,
		})
	}

	if len(sources) == 0 {
		slog.Info("schedule: scan found no changed documents", "dir", w.cfg.Scheduler.WatchDir)
		return
	}

	results := w.ingester.IngestAll(ctx, sources)
	for i, res := range results {
		if res.Err != nil {
			slog.Warn("schedule: re-ingest failed", "document", sources[i].Name, "err", res.Err)
			continue
		}
		w.markIngested(sources[i].SourcePath)
		slog.Info("schedule: re-ingested document", "document", res.DocumentName,
			"headings", res.HeadingCount, "chunks", res.ChunkCount)
	}
}

func (w *Watcher) changedSince(path string, modTime time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.lastRun[path]
	return !ok || modTime.After(last)
}

func (w *Watcher) markIngested(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRun[path] = time.Now()
}
