package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
)

const readBufferSize = 4096

// Delta is the incremental content carried by one streamed line
type Delta struct {
	Content string
	Done    bool
}

type streamLine struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// ParseLine extracts the delta from one NDJSON line. ok is false for blank or
// unparsable lines, which callers skip.
func ParseLine(line []byte) (Delta, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Delta{}, false
	}
	var sl streamLine
	if err := json.Unmarshal(line, &sl); err != nil {
		return Delta{}, false
	}
	d := Delta{Done: sl.Done}
	if sl.Message != nil {
		d.Content = sl.Message.Content
	}
	return d, true
}

// Decoder turns arbitrarily split byte chunks into deltas.
//
// Lines are cut on the '\n' byte. That byte never occurs inside a multi-byte
// UTF-8 sequence, so a character split across chunks simply stays pending
// until its line terminator arrives.
type Decoder struct {
	pending []byte
	skipped int
}

// Feed appends chunk and returns the deltas of every line it completed, in order
func (d *Decoder) Feed(chunk []byte) []Delta {
	d.pending = append(d.pending, chunk...)

	var out []Delta
	consumed := 0
	for {
		i := bytes.IndexByte(d.pending[consumed:], '\n')
		if i < 0 {
			break
		}
		line := d.pending[consumed : consumed+i]
		consumed += i + 1

		delta, ok := ParseLine(line)
		if !ok {
			if len(bytes.TrimSpace(line)) > 0 {
				d.skipped++
			}
			continue
		}
		if delta.Content == "" && !delta.Done {
			continue
		}
		out = append(out, delta)
	}

	if consumed > 0 {
		d.pending = append([]byte(nil), d.pending[consumed:]...)
	}
	return out
}

// buffered returns the number of bytes held for an unterminated line
func (d *Decoder) buffered() int {
	return len(d.pending)
}

// Skipped returns how many non-blank lines failed to parse
func (d *Decoder) Skipped() int {
	return d.skipped
}

// End discards any unterminated tail and reports its size
func (d *Decoder) End() int {
	n := len(d.pending)
	d.pending = nil
	return n
}

// Reader pulls deltas from a streaming body one at a time
type Reader struct {
	src   io.Reader
	dec   Decoder
	buf   []byte
	queue []Delta
	err   error
}

// NewReader wraps a streaming body
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, buf: make([]byte, readBufferSize)}
}

// Next blocks until the next delta is available. It returns io.EOF once the
// body ended and every complete line was delivered, or the context's cause if
// ctx is done.
func (r *Reader) Next(ctx context.Context) (Delta, error) {
	for {
		if ctx.Err() != nil {
			return Delta{}, context.Cause(ctx)
		}
		if len(r.queue) > 0 {
			d := r.queue[0]
			r.queue = r.queue[1:]
			return d, nil
		}
		if r.err != nil {
			return Delta{}, r.err
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.queue = append(r.queue, r.dec.Feed(r.buf[:n])...)
		}
		if err != nil {
			if err == io.EOF {
				r.dec.End()
			}
			r.err = err
		}
	}
}

// Skipped returns how many malformed lines were dropped so far
func (r *Reader) Skipped() int {
	return r.dec.Skipped()
}

// Collect drains src and returns the accumulated content
func Collect(ctx context.Context, src io.Reader) (string, error) {
	var sb strings.Builder
	r := NewReader(src)
	for {
		d, err := r.Next(ctx)
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(d.Content)
	}
}
