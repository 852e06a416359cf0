package compile

import (
	"io"
	"sync"
)

// routedWriter is the stable writer handed to the interpreter at
// construction. yaegi snapshots its output writers once and rewires
// interpreted fmt calls to them permanently, so per-run capture has to happen
// behind them: the target is swapped for each run and writes are serialized
// against the swap.
type routedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (r *routedWriter) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Write(p)
}

func (r *routedWriter) route(w io.Writer) {
	r.mu.Lock()
	r.w = w
	r.mu.Unlock()
}
