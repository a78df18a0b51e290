package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
)

// maxRecord caps a single record so a corrupt length cannot force a huge
// allocation.
const maxRecord = 64 << 20

// Record layout after the 4-byte little-endian length prefix:
//
//	int32 id | int32 time | uint32 n | n × (x, y, thick, score) float32
const recordHeader = 12

func writeBinary(w io.Writer, t l4segments.Table) error {
	if _, err := w.Write(magicBinary); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	var buf []byte
	return eachSegment(t, func(s *l4segments.Segment) error {
		size := recordHeader + SampleSize*s.Len()
		buf = buf[:0]
		buf = binary.LittleEndian.AppendUint32(buf, uint32(size))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(s.ID)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(s.Time)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(s.Len()))
		buf = AppendSamples(buf, s.Samples)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("failed to write segment %d/%d: %w", s.Time, s.ID, err)
		}
		return nil
	})
}

func readBinary(r io.Reader) (l4segments.Table, error) {
	t := l4segments.NewTable()
	lenBuf := make([]byte, 4)
	var data []byte
	for rec := 0; ; rec++ {
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			if errors.Is(err, io.EOF) {
				return t, nil
			}
			return nil, fmt.Errorf("%w: record %d length: %v", ErrFormat, rec, err)
		}
		size := binary.LittleEndian.Uint32(lenBuf)
		if size < recordHeader || size > maxRecord || (size-recordHeader)%SampleSize != 0 {
			return nil, fmt.Errorf("%w: record %d has bad length %d", ErrFormat, rec, size)
		}
		if cap(data) < int(size) {
			data = make([]byte, size)
		}
		data = data[:size]
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("%w: record %d truncated: %v", ErrFormat, rec, err)
		}

		id := int(int32(binary.LittleEndian.Uint32(data[0:])))
		frame := int(int32(binary.LittleEndian.Uint32(data[4:])))
		n := int(binary.LittleEndian.Uint32(data[8:]))
		if recordHeader+SampleSize*n != int(size) {
			return nil, fmt.Errorf("%w: record %d declares %d samples in %d bytes", ErrFormat, rec, n, size)
		}
		samples, err := ParseSamples(data[recordHeader:])
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrFormat, rec, err)
		}
		s := &l4segments.Segment{ID: id, Time: frame, Samples: samples}
		if err := t.Add(s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
	}
}

// SampleSize is the encoded size of one sample.
const SampleSize = 16

// AppendSamples appends samples as little-endian float32 quadruples
// (x, y, thick, score).
func AppendSamples(b []byte, samples []l4segments.Sample) []byte {
	for _, p := range samples {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(p.X))
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(p.Y))
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(p.Thick))
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(p.Score))
	}
	return b
}

// ParseSamples decodes the output of AppendSamples.
func ParseSamples(b []byte) ([]l4segments.Sample, error) {
	if len(b)%SampleSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of samples", ErrFormat, len(b))
	}
	out := make([]l4segments.Sample, len(b)/SampleSize)
	for i := range out {
		off := SampleSize * i
		out[i] = l4segments.Sample{
			X:     math.Float32frombits(binary.LittleEndian.Uint32(b[off:])),
			Y:     math.Float32frombits(binary.LittleEndian.Uint32(b[off+4:])),
			Thick: math.Float32frombits(binary.LittleEndian.Uint32(b[off+8:])),
			Score: math.Float32frombits(binary.LittleEndian.Uint32(b[off+12:])),
		}
	}
	return out, nil
}
