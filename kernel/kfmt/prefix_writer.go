package kfmt

import (
	"bytes"
	"io"
)

// PrefixWriter is an io.Writer that tags every line written to Sink with
// Prefix. A line may be assembled from several writes; the prefix is only
// emitted when its first byte arrives.
type PrefixWriter struct {
	// Sink receives the prefixed output.
	Sink io.Writer

	// Prefix is written at the beginning of each line.
	Prefix []byte

	// midLine is set while the current line has been started but not
	// terminated.
	midLine bool
}

// Write writes p to Sink, inserting Prefix at each line start. The returned
// count only includes bytes of p, never prefix bytes.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written int

	for len(p) > 0 {
		if !w.midLine {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		line := p
		if idx := bytes.IndexByte(p, '\n'); idx != -1 {
			line = p[:idx+1]
		}

		n, err := w.Sink.Write(line)
		written += n
		if err != nil {
			return written, err
		}

		if line[len(line)-1] == '\n' {
			w.midLine = false
		}
		p = p[len(line):]
	}

	return written, nil
}
