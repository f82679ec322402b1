// Package designs imports cohort design files dropped into a watched
// directory, so a coach can launch a cohort by copying a YAML file onto
// the server instead of calling the admin API.
package designs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/services"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// Watcher imports every design file in dir on start and re-imports files
// as they appear or change. Imports are idempotent: a design whose cohort
// already exists is skipped with a debug log, so editors that fire several
// write events or a process restart never duplicate a cohort.
type Watcher struct {
	dir      string
	svc      *services.DesignService
	log      zerolog.Logger
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewWatcher(dir string, svc *services.DesignService, log zerolog.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		svc:      svc,
		log:      log,
		debounce: 250 * time.Millisecond,
		timers:   map[string]*time.Timer{},
	}
}

// ImportExisting imports every design file already present in the
// directory. Watch calls it once before listening for events.
func (w *Watcher) ImportExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Str("dir", w.dir).Msg("design scan failed")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isDesignFile(entry.Name()) {
			continue
		}
		w.importFile(filepath.Join(w.dir, entry.Name()))
	}
}

// Watch blocks until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.log.Info().Str("dir", w.dir).Msg("watching design directory")

	w.ImportExisting()

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isDesignFile(ev.Name) {
				continue
			}
			// Debounce so a half-written file is not parsed mid-save.
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Str("dir", w.dir).Msg("design watch error")
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.importFile(path) })
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.timers {
		t.Stop()
	}
}

func (w *Watcher) importFile(path string) {
	file := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn().Err(err).Str("file", file).Msg("design read failed")
		return
	}
	design, err := services.ParseDesign(data, services.DesignFormatForPath(path))
	if err != nil {
		w.log.Warn().Err(err).Str("file", file).Msg("design parse failed")
		return
	}

	// The file's own start_date decides the window; Import rejects the
	// design when it has none.
	cohort, err := w.svc.Import(design, timeutil.Date{})
	if err != nil {
		if se, ok := services.AsServiceError(err); ok {
			switch se.Code {
			case services.ErrorConflict:
				w.log.Debug().Str("file", file).Msg("design already imported")
			default:
				w.log.Warn().Str("file", file).Str("reason", se.Message).Msg("design rejected")
			}
			return
		}
		w.log.Error().Err(err).Str("file", file).Msg("design import failed")
		return
	}
	w.log.Info().
		Str("file", file).
		Str("cohort", cohort.ID).
		Str("name", cohort.Name).
		Str("start", cohort.StartDate.String()).
		Msg("design imported")
}

func isDesignFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
