package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
)

// Format names an encoding.
type Format string

const (
	FormatBinary Format = "whiskbin1"
	FormatProto  Format = "whiskpb1"
)

// MagicLen is the length of every format's magic header.
const MagicLen = 8

var (
	magicBinary = []byte("WHSKBIN1")
	magicProto  = []byte("WHSKPB01")
)

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatBinary, FormatProto:
		return f, nil
	}
	return "", fmt.Errorf("unknown whiskers format %q (want %s or %s)", s, FormatBinary, FormatProto)
}

// DetectFormat identifies a format from the first MagicLen bytes.
func DetectFormat(header []byte) (Format, error) {
	if len(header) < MagicLen {
		return "", fmt.Errorf("%w: header too short (%d bytes)", ErrFormat, len(header))
	}
	switch {
	case bytes.Equal(header[:MagicLen], magicBinary):
		return FormatBinary, nil
	case bytes.Equal(header[:MagicLen], magicProto):
		return FormatProto, nil
	}
	return "", fmt.Errorf("%w: unknown magic %q", ErrFormat, header[:MagicLen])
}

// Encode writes t to w in format f. Segments are written in frame then id
// order so equal tables encode to equal bytes.
func Encode(w io.Writer, t l4segments.Table, f Format) error {
	switch f {
	case FormatBinary:
		return writeBinary(w, t)
	case FormatProto:
		return writeProto(w, t)
	}
	return fmt.Errorf("unknown whiskers format %q", f)
}

// Decode reads a table from r, detecting the format from its header.
func Decode(r io.Reader) (l4segments.Table, Format, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(MagicLen)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read header: %v", ErrFormat, err)
	}
	f, err := DetectFormat(header)
	if err != nil {
		return nil, "", err
	}
	br.Discard(MagicLen)

	var t l4segments.Table
	switch f {
	case FormatBinary:
		t, err = readBinary(br)
	case FormatProto:
		t, err = readProto(br)
	}
	if err != nil {
		return nil, f, err
	}
	return t, f, nil
}

func eachSegment(t l4segments.Table, fn func(*l4segments.Segment) error) error {
	for _, frame := range t.Frames() {
		for _, s := range t.Segments(frame) {
			if err := fn(s); err != nil {
				return err
			}
		}
	}
	return nil
}
