// Package stream provides the incremental byte-to-text decoder shared by the
// transcript and summary pipelines.
package stream

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrDecoderClosed is returned when writing to a closed decoder.
var ErrDecoderClosed = errors.New("decoder is closed")

// Decoder accumulates UTF-8 text from a sequence of binary chunks.
//
// A multi-byte sequence split across two chunks is held back until its
// remaining bytes arrive, so Text never exposes a corrupted character.
// Text only grows for the lifetime of a Decoder.
type Decoder struct {
	text   strings.Builder
	w      *transform.Writer
	bytes  int64
	chunks int
	closed bool
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	d := &Decoder{}
	d.w = transform.NewWriter(&d.text, unicode.UTF8.NewDecoder())
	return d
}

// Write consumes the next chunk. Invalid byte sequences are replaced with
// U+FFFD; incomplete trailing sequences are buffered for the next chunk.
func (d *Decoder) Write(chunk []byte) error {
	if d.closed {
		return ErrDecoderClosed
	}
	d.bytes += int64(len(chunk))
	d.chunks++
	_, err := d.w.Write(chunk)
	return err
}

// Close flushes any buffered incomplete sequence. A dangling partial
// character at end of stream becomes U+FFFD. Close is idempotent.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.w.Close()
}

// Text returns the cumulative decoded text seen so far.
func (d *Decoder) Text() string {
	return d.text.String()
}

// Bytes returns the number of raw bytes consumed.
func (d *Decoder) Bytes() int64 {
	return d.bytes
}

// Chunks returns the number of chunks consumed.
func (d *Decoder) Chunks() int {
	return d.chunks
}
