// Package capture buffers per-speaker voice data between analysis cycles.
package capture

import (
	"bytes"
	"sync"

	"github.com/discursa/discursa/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Sink = (*Accumulator)(nil)

// Accumulator collects PCM chunks per speaker until the next flush. It is
// the [audio.Sink] attached to a capture handle for the lifetime of a
// session; one flush feeds exactly one analysis cycle.
//
// Accumulator is safe for concurrent use.
type Accumulator struct {
	mu      sync.Mutex
	buffers map[string]*bytes.Buffer
}

// New creates an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{buffers: make(map[string]*bytes.Buffer)}
}

// Append adds a chunk of PCM for the given speaker. Empty chunks are ignored.
func (a *Accumulator) Append(speakerID string, pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[speakerID]
	if !ok {
		buf = &bytes.Buffer{}
		a.buffers[speakerID] = buf
	}
	buf.Write(pcm)
}

// Flush atomically detaches everything buffered so far and resets the
// accumulator. Chunks appended while the result is being assembled land in
// the fresh buffer. Speakers without data are omitted; an empty accumulator
// yields an empty map.
func (a *Accumulator) Flush() map[string][]byte {
	a.mu.Lock()
	detached := a.buffers
	a.buffers = make(map[string]*bytes.Buffer)
	a.mu.Unlock()

	out := make(map[string][]byte, len(detached))
	for id, buf := range detached {
		if buf.Len() == 0 {
			continue
		}
		out[id] = buf.Bytes()
	}
	return out
}

// Speakers returns the number of speakers with buffered data.
func (a *Accumulator) Speakers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, buf := range a.buffers {
		if buf.Len() > 0 {
			n++
		}
	}
	return n
}

// BufferedBytes returns the total number of buffered PCM bytes across all
// speakers.
func (a *Accumulator) BufferedBytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var n int64
	for _, buf := range a.buffers {
		n += int64(buf.Len())
	}
	return n
}
