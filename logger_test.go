package ringlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{BatchSize: 100, QueueDepth: 10})
	if err == nil {
		t.Fatal("expected New to reject batch_size > queue_depth")
	}
}

func TestLoggerLogAndFlushWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	logger, err := New(Config{LogFileName: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	logger.Info([]byte("server started"))
	logger.Warn([]byte("disk nearly full"))
	logger.Error([]byte("connection lost"))
	logger.Flush()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, want := range []string{"server started", "disk nearly full", "connection lost", "[INFO]", "[WARN]", "[ERROR]"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file missing %q; contents: %s", want, data)
		}
	}
}

// TestLoggerConcurrentProducersPreserveAllRecords is a scaled-down form of
// scenario S3 from the acceptance table: many concurrent producers, no
// record lost.
func TestLoggerConcurrentProducersPreserveAllRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	logger, err := New(Config{LogFileName: path, BatchSize: 8, QueueDepth: 256})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	const producers = 20
	const perProducer = 50
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				logger.Info([]byte("record"))
			}
		}(i)
	}
	wg.Wait()
	logger.Flush()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got := strings.Count(string(data), "record")
	want := producers * perProducer
	if got != want {
		t.Fatalf("wrote %d records, want %d", got, want)
	}
}

// TestLoggerSequenceModePreservesPerProducerOrder checks that with
// SequenceMode on, sequence numbers assigned to a single producer's
// records are strictly increasing.
func TestLoggerSequenceModePreservesPerProducerOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	logger, err := New(Config{LogFileName: path, SequenceMode: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	for i := 0; i < 10; i++ {
		logger.Info([]byte("x"))
	}
	logger.Flush()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 10 {
		t.Fatalf("got %d lines, want 10", len(lines))
	}
	last := -1
	for _, line := range lines {
		idx := strings.Index(line, "[Seq: ")
		if idx < 0 {
			t.Fatalf("line missing Seq field: %q", line)
		}
		var n int
		if _, err := fmt.Sscanf(line[idx:], "[Seq: %d]", &n); err != nil {
			t.Fatalf("could not parse sequence from %q: %v", line, err)
		}
		if n <= last {
			t.Fatalf("sequence not increasing: %d after %d", n, last)
		}
		last = n
	}
}

// TestLoggerRotatesAtSizeThreshold is a form of scenario S5: a low MaxLogSizeBytes
// forces at least one rotation, producing a numbered backup file.
func TestLoggerRotatesAtSizeThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	logger, err := New(Config{LogFileName: path, MaxLogSizeBytes: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	for i := 0; i < 200; i++ {
		logger.Info([]byte("filling up the log file to force a rotation"))
	}
	logger.Flush()

	matches, err := filepath.Glob(filepath.Join(dir, "app*.log"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) < 2 {
		t.Fatalf("expected at least one rotated backup alongside the active file, found %v", matches)
	}
}

func TestLoggerWriteImplementsIOWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	logger, err := New(Config{LogFileName: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	n, err := logger.Write([]byte("from an io.Writer caller\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len("from an io.Writer caller\n") {
		t.Fatalf("Write returned n=%d, want len(p)", n)
	}
	logger.Flush()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "from an io.Writer caller") {
		t.Fatalf("log file missing io.Writer payload: %s", data)
	}
}

func TestLoggerCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	logger, err := New(Config{LogFileName: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestLoggerLogAfterCloseReportsInsteadOfPanicking(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	var reported []error
	var mu sync.Mutex
	logger, err := New(Config{LogFileName: path, ErrorReporter: func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Close()

	logger.Info([]byte("dropped"))

	mu.Lock()
	defer mu.Unlock()
	if len(reported) == 0 {
		t.Fatal("expected an error report for a Log call after Close")
	}
}

func TestLoggerStatsReflectsQueueAndRingState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	logger, err := New(Config{LogFileName: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	stats := logger.Stats()
	if !stats.Operational {
		t.Error("a freshly constructed logger's ring should be operational")
	}

	logger.Info([]byte("x"))
	logger.Flush()
	if logger.Stats().ActiveTasks != 0 {
		t.Error("ActiveTasks should be 0 once Flush has returned")
	}
}

func TestLoggerSequenceCounterResetsBetweenRuns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	logger, err := New(Config{LogFileName: path, SequenceMode: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	logger.Info([]byte("a"))
	logger.Flush()

	counter := logger.SequenceCounter()
	if counter == nil {
		t.Fatal("SequenceCounter() returned nil with SequenceMode enabled")
	}
	counter.Reset()
	if got := counter.Next(); got != 1 {
		t.Fatalf("Next() after Reset() = %d, want 1", got)
	}
}

func TestLoggerShutdownTimeoutIsBounded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	logger, err := New(Config{LogFileName: path, ShutdownTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	logger.Close()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Close took %s, want a bounded shutdown", elapsed)
	}
}
