// Package backup periodically snapshots the JSON collection files so a
// corrupted or fat-fingered data directory can be recovered.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cafizzio/ledger/internal/app/metrics"
	"github.com/cafizzio/ledger/internal/app/system"
	"github.com/cafizzio/ledger/pkg/logger"
)

// FileSource exposes the files to snapshot. The jsonfile store implements it.
type FileSource interface {
	Files() []string
}

// Service copies the source files into a backups directory on a cron
// schedule, keeping the newest Retain copies of each file.
type Service struct {
	source   FileSource
	dir      string
	schedule cron.Schedule
	retain   int
	log      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ system.Service = (*Service)(nil)

// New constructs a backup service. The schedule accepts the cron formats of
// robfig/cron, including "@every 1h".
func New(source FileSource, dir, spec string, retain int, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.NewDefault("backup")
	}
	if dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if retain < 1 {
		retain = 1
	}
	if spec == "" {
		spec = "@every 1h"
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse backup schedule %q: %w", spec, err)
	}

	return &Service{
		source:   source,
		dir:      dir,
		schedule: schedule,
		retain:   retain,
		log:      log,
	}, nil
}

func (s *Service) Name() string { return "backup" }

// Start launches the snapshot loop.
func (s *Service) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("backup service already started")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)
	return nil
}

// Stop halts the snapshot loop and waits for an in-flight run to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.Snapshot(); err != nil {
			metrics.RecordBackup(false)
			s.log.WithError(err).Error("backup run failed")
		} else {
			metrics.RecordBackup(true)
		}
	}
}

// Snapshot copies every source file into the backup directory with a
// timestamped name, then prunes old copies.
func (s *Service) Snapshot() error {
	stamp := time.Now().UTC().Format("20060102T150405Z")
	for _, path := range s.source.Files() {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read %s: %w", path, err)
		}

		base := filepath.Base(path)
		target := filepath.Join(s.dir, fmt.Sprintf("%s.%s", base, stamp))
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}

		if err := s.prune(base); err != nil {
			return err
		}
	}
	s.log.WithField("stamp", stamp).Info("backup snapshot written")
	return nil
}

// prune removes the oldest copies of base beyond the retention count. Backup
// names embed a sortable UTC stamp, so lexical order is chronological.
func (s *Service) prune(base string) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	var copies []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), base+".") {
			copies = append(copies, entry.Name())
		}
	}
	if len(copies) <= s.retain {
		return nil
	}

	sort.Strings(copies)
	for _, name := range copies[:len(copies)-s.retain] {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("prune %s: %w", name, err)
		}
	}
	return nil
}
