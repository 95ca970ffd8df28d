// background.go: background compression, checksum, and retention
//
// Copyright (c) 2026 ringlog contributors
// SPDX-License-Identifier: MPL-2.0

package rotate

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// task is a unit of post-rotation background work.
type task struct {
	kind string // "cleanup", "compress", "checksum"
	path string
}

// Background runs compression, checksumming, and backup retention off
// the consumer loop's critical path, so a slow gzip or disk scan never
// delays the next write: a small fixed pool draining a buffered task
// queue, non-blocking submit, once-only shutdown.
type Background struct {
	ctx       context.Context
	cancel    context.CancelFunc
	taskQueue chan task
	wg        sync.WaitGroup
	active    sync.WaitGroup
	stopOnce  sync.Once

	baseName   string
	ext        string
	compress   bool
	checksum   bool
	maxBackups int
	maxFileAge time.Duration
	onError    func(op string, err error)
}

// Config bundles the retention/compression settings for a Background
// worker pool.
type Config struct {
	BaseName   string
	Ext        string
	Compress   bool
	Checksum   bool
	MaxBackups int
	MaxFileAge time.Duration
	OnError    func(op string, err error)
}

// NewBackground starts numWorkers goroutines and returns a Background
// ready to accept Submit calls.
func NewBackground(numWorkers int, cfg Config) *Background {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Background{
		ctx:        ctx,
		cancel:     cancel,
		taskQueue:  make(chan task, 100),
		baseName:   cfg.BaseName,
		ext:        cfg.Ext,
		compress:   cfg.Compress,
		checksum:   cfg.Checksum,
		maxBackups: cfg.MaxBackups,
		maxFileAge: cfg.MaxFileAge,
		onError:    cfg.OnError,
	}
	if numWorkers <= 0 {
		numWorkers = 2
	}
	for i := 0; i < numWorkers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Background) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case t := <-b.taskQueue:
			b.run(t)
		}
	}
}

func (b *Background) run(t task) {
	defer b.active.Done()
	switch t.kind {
	case "cleanup":
		b.cleanup()
	case "compress":
		b.compressFile(t.path)
	case "checksum":
		b.checksumFile(t.path)
	}
}

// submit enqueues t without blocking; a full queue silently drops the
// task (retention/compression is best-effort, not correctness-critical).
func (b *Background) submit(t task) {
	select {
	case <-b.ctx.Done():
		return
	default:
	}
	b.active.Add(1)
	select {
	case b.taskQueue <- t:
	case <-b.ctx.Done():
		b.active.Done()
	default:
		b.active.Done()
	}
}

// OnRotated should be registered with Rotater.OnRotated; it schedules
// whichever post-processing steps are configured.
func (b *Background) OnRotated(rotatedPath string) {
	if b.maxBackups > 0 || b.maxFileAge > 0 {
		b.submit(task{kind: "cleanup"})
	}
	if b.checksum {
		b.submit(task{kind: "checksum", path: rotatedPath})
	}
	if b.compress {
		b.submit(task{kind: "compress", path: rotatedPath})
	}
}

// Stop cancels pending work and waits for in-flight tasks to finish.
func (b *Background) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()
		b.wg.Wait()
		for {
			select {
			case <-b.taskQueue:
				b.active.Done()
			default:
				return
			}
		}
	})
}

// Wait blocks until every submitted task has finished running, including
// tasks still queued when Wait is called. Used by tests that need
// compression/checksum side effects to be visible before asserting.
func (b *Background) Wait() { b.active.Wait() }

func (b *Background) reportError(op string, err error) {
	if b.onError != nil {
		b.onError(op, err)
	}
}

type fileInfo struct {
	name    string
	modTime time.Time
}

func (b *Background) cleanup() {
	pattern := b.baseName + "*" + b.ext
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}

	now := time.Now()
	var files []fileInfo
	for _, match := range matches {
		if match == b.baseName+b.ext {
			continue // the active file is not a backup
		}
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		if b.maxFileAge > 0 && now.Sub(info.ModTime()) > b.maxFileAge {
			if err := os.Remove(match); err != nil {
				b.reportError("age_cleanup", err)
			}
			continue
		}
		files = append(files, fileInfo{name: match, modTime: info.ModTime()})
	}

	if b.maxBackups <= 0 || len(files) <= b.maxBackups {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	for i := 0; i < len(files)-b.maxBackups; i++ {
		if err := os.Remove(files[i].name); err != nil {
			b.reportError("count_cleanup", err)
		}
	}
}

func (b *Background) compressFile(filename string) {
	source, err := os.Open(filename) // #nosec G304 -- filename is an internally generated backup path
	if err != nil {
		b.reportError("compress_open", err)
		return
	}
	defer source.Close()

	compressed := filename + ".gz"
	tmp := compressed + ".tmp"

	target, err := os.Create(tmp) // #nosec G304 -- tmp is internally generated
	if err != nil {
		b.reportError("compress_create", err)
		return
	}

	gz := gzip.NewWriter(target)
	if _, err := io.Copy(gz, source); err != nil {
		gz.Close()
		target.Close()
		os.Remove(tmp)
		b.reportError("compress_copy", err)
		return
	}
	if err := gz.Close(); err != nil {
		target.Close()
		os.Remove(tmp)
		b.reportError("compress_finalize", err)
		return
	}
	if err := target.Close(); err != nil {
		os.Remove(tmp)
		b.reportError("compress_close", err)
		return
	}
	if err := os.Rename(tmp, compressed); err != nil {
		os.Remove(tmp)
		b.reportError("compress_rename", err)
		return
	}
	if err := os.Remove(filename); err != nil {
		b.reportError("compress_cleanup", err)
	}
}

func (b *Background) checksumFile(filename string) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		gz := filename + ".gz"
		if _, err := os.Stat(gz); err == nil {
			filename = gz
		} else {
			b.reportError("checksum_missing", fmt.Errorf("file not found: %s", filename))
			return
		}
	}

	f, err := os.Open(filename) // #nosec G304 -- filename is an internally generated backup path
	if err != nil {
		b.reportError("checksum_open", err)
		return
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		b.reportError("checksum_read", err)
		return
	}

	sidecar := filename + ".sha256"
	content := fmt.Sprintf("%x  %s\n", h.Sum(nil), filepath.Base(filename))
	if err := os.WriteFile(sidecar, []byte(content), 0600); err != nil {
		b.reportError("checksum_write", err)
	}
}
