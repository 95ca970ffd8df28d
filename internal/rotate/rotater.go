// rotater.go: byte-threshold file rotation
//
// Copyright (c) 2026 ringlog contributors
// SPDX-License-Identifier: MPL-2.0

package rotate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Rotater tracks bytes written to the active file and renames/reopens it
// once a threshold is crossed. current_bytes only ever increases between
// rotations and resets to 0 on rotation.
type Rotater struct {
	baseName     string
	ext          string
	activePath   string
	maxBytes     int64
	currentBytes int64

	sink *Sink

	onRotated func(rotatedPath string) // optional hook: compression/checksum/cleanup
}

// New builds a Rotater bound to sink, whose active file lives at
// activePath = base+ext. maxBytes <= 0 means "rotate on every write"
// (rotate on every write, a legitimate boundary configuration).
func New(sink *Sink, activePath string, maxBytes int64) *Rotater {
	ext := filepath.Ext(activePath)
	base := strings.TrimSuffix(activePath, ext)
	return &Rotater{
		baseName:   base,
		ext:        ext,
		activePath: activePath,
		maxBytes:   maxBytes,
		sink:       sink,
	}
}

// OnRotated registers a callback invoked with the path of the just-
// rotated (backup) file, after rotation completes successfully.
func (r *Rotater) OnRotated(fn func(rotatedPath string)) { r.onRotated = fn }

// CurrentBytes returns the running byte count since the last rotation.
func (r *Rotater) CurrentBytes() int64 { return r.currentBytes }

// Advance adds n to the running byte count. Called by the consumer loop
// with the byte count reported by a completed write.
func (r *Rotater) Advance(n int64) { r.currentBytes += n }

// ShouldRotate reports whether the threshold has been crossed.
func (r *Rotater) ShouldRotate() bool { return r.currentBytes >= r.maxBytes }

// Rotate computes the smallest k >= 1 such that "<base><k><ext>" does not
// exist, renames the active file to it, and instructs the sink to
// reopen a fresh file at the original path. If the active file does not
// exist, no rename happens but current_bytes still resets.
func (r *Rotater) Rotate() (rotatedPath string, err error) {
	target, err := r.nextBackupName()
	if err != nil {
		return "", err
	}

	if _, statErr := os.Stat(r.activePath); statErr == nil {
		if err := os.Rename(r.activePath, target); err != nil {
			return "", fmt.Errorf("rotate: rename %s -> %s: %w", r.activePath, target, err)
		}
	} else {
		target = ""
	}

	if err := r.sink.Reopen(r.activePath); err != nil {
		return "", fmt.Errorf("rotate: reopen %s: %w", r.activePath, err)
	}

	r.currentBytes = 0

	if target != "" && r.onRotated != nil {
		r.onRotated(target)
	}
	return target, nil
}

// nextBackupName finds the smallest k >= 1 such that "<base><k><ext>"
// does not exist on disk.
func (r *Rotater) nextBackupName() (string, error) {
	for k := 1; ; k++ {
		candidate := fmt.Sprintf("%s%d%s", r.baseName, k, r.ext)
		_, err := os.Stat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("rotate: stat %s: %w", candidate, err)
		}
	}
}
