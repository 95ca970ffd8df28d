// Package ringlog provides an asynchronous, high-throughput, thread-safe
// application logger.
//
// It accepts formatted log records from many concurrent producer
// goroutines with minimal latency and durably persists them in order to a
// rotating log file, using a single serialized writer goroutine, fed
// through a bounded submission queue, that stands in for a kernel
// submission/completion ring.
//
// # Quick start
//
//	logger, err := ringlog.New(ringlog.Config{LogFileName: "app.log"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer logger.Close()
//
//	logger.Log(ringlog.Info, []byte("server started"))
//	logger.Flush()
//
// # Pipeline
//
// A producer call to Log builds a Record and pushes it onto a hand-off
// queue (queue.go). A single consumer goroutine (consumer.go) drains the
// queue, formats and optionally coalesces records into pooled buffers
// (preparer.go, internal/bufpool), submits them through an async write
// ring (internal/ioring), and feeds completion byte counts to a rotation
// policy (internal/rotate). Producers never touch the ring, the file, or
// the rotation state directly.
//
// # Ordering
//
// Records from a single producer goroutine appear in the file in the
// order they were logged. Ordering across producers is whatever
// interleaving the hand-off queue observed; it is not otherwise
// guaranteed.
package ringlog
