package completion

import "strings"

// Accumulator reassembles a streamed completion. Chunks are appended in
// arrival order; the text is only meaningful once the stream has been
// consumed to completion, since a JSON object or markdown block may
// straddle chunk boundaries.
type Accumulator struct {
	builder strings.Builder
	chunks  int
}

// Append adds the next chunk of the stream
func (a *Accumulator) Append(chunk []byte) {
	a.builder.Write(chunk)
	a.chunks++
}

// String returns the full reassembled text
func (a *Accumulator) String() string {
	return a.builder.String()
}

// Chunks returns the number of chunks received
func (a *Accumulator) Chunks() int {
	return a.chunks
}

// Len returns the reassembled length in bytes
func (a *Accumulator) Len() int {
	return a.builder.Len()
}
