// sink.go: append-only file handle
//
// Copyright (c) 2026 ringlog contributors
// SPDX-License-Identifier: MPL-2.0

// Package rotate implements the append-only file sink and the byte
// threshold rotation policy bound to it.
package rotate

import "os"

// Sink is an append-only file handle. It is move-only in spirit: callers
// must not share a *Sink across goroutines without external
// synchronization (the consumer loop is its only owner).
type Sink struct {
	file *os.File
	mode os.FileMode
}

// Open creates path with O_CREATE|O_APPEND if it does not exist.
func Open(path string, mode os.FileMode) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, mode) // #nosec G304 -- path is caller-controlled application config, not external input
	if err != nil {
		return nil, err
	}
	return &Sink{file: f, mode: mode}, nil
}

// File exposes the underlying *os.File for the write ring to submit
// writes against.
func (s *Sink) File() *os.File { return s.file }

// Reopen closes the current descriptor and opens a fresh one at path.
func (s *Sink) Reopen(path string) error {
	if s.file != nil {
		_ = s.file.Close()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, s.mode) // #nosec G304 -- path is caller-controlled application config, not external input
	if err != nil {
		return err
	}
	s.file = f
	return nil
}

// Close closes the underlying descriptor.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Size stats the current file for its byte length.
func (s *Sink) Size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
