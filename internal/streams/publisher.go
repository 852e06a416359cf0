package streams

import (
	"io"
	"time"
)

// readBufferSize is the per-read buffer for draining a captured stream.
const readBufferSize = 4096

// Publish drains r until EOF, emitting accumulated text in batches no more
// often than interval. Chunked rather than line-buffered: this bounds the
// message rate while staying near real time, and within one stream chunks
// preserve emission order. The final partial batch is always flushed before
// returning.
func Publish(r io.Reader, interval time.Duration, emit func(text string)) error {
	buf := make([]byte, readBufferSize)
	var pending []byte
	last := time.Now()
	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
		}
		flushNow := err != nil || (len(pending) > 0 && time.Since(last) >= interval)
		if flushNow && len(pending) > 0 {
			emit(string(pending))
			pending = pending[:0]
			last = time.Now()
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
