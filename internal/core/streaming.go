package core

// streaming.go provides reader wrappers for CSV decoding.
//
//   - BOMSkippingReader: Removes the UTF-8 BOM (0xEF 0xBB 0xBF) added by Excel on Windows
//   - StreamingUTF8Sanitizer: Replaces invalid UTF-8 bytes with '?'
//
// Use wrapCSVSource to apply both in the correct order.

import (
	"bufio"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	br      *bufio.Reader
	checked bool
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{br: bufio.NewReader(r)}
}

// Read implements io.Reader. The BOM check happens on the first call.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		if b, err := r.br.Peek(len(utf8BOM)); err == nil &&
			b[0] == utf8BOM[0] && b[1] == utf8BOM[1] && b[2] == utf8BOM[2] {
			_, _ = r.br.Discard(len(utf8BOM))
		}
	}
	return r.br.Read(p)
}

// StreamingUTF8Sanitizer wraps an io.Reader and replaces invalid UTF-8 bytes
// with '?' on the fly. A multi-byte sequence split across reads is held back
// until the next read completes it.
type StreamingUTF8Sanitizer struct {
	reader  io.Reader
	pending []byte
}

// NewStreamingUTF8Sanitizer creates a new streaming UTF-8 sanitizer.
func NewStreamingUTF8Sanitizer(r io.Reader) *StreamingUTF8Sanitizer {
	return &StreamingUTF8Sanitizer{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (s *StreamingUTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = s.pending[:0]
	}

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	if isAllASCII(p[:n]) {
		return n, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

// sanitize rewrites data in place and returns the number of bytes to emit.
// Unless atEOF, an incomplete trailing sequence is moved to pending.
func (s *StreamingUTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(data[read:]) {
				s.pending = append(s.pending, data[read:]...)
				return write
			}
			data[write] = '?'
			write++
			read++
			continue
		}

		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// wrapCSVSource strips the BOM first, then sanitizes what remains.
func wrapCSVSource(r io.Reader) io.Reader {
	return NewStreamingUTF8Sanitizer(NewBOMSkippingReader(r))
}
