package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
)

// Segment message field numbers.
const (
	fieldID    protowire.Number = 1
	fieldTime  protowire.Number = 2
	fieldX     protowire.Number = 3
	fieldY     protowire.Number = 4
	fieldThick protowire.Number = 5
	fieldScore protowire.Number = 6
)

func appendPackedFloats(b []byte, num protowire.Number, n int, at func(i int) float32) []byte {
	if n == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(4*n))
	for i := 0; i < n; i++ {
		b = protowire.AppendFixed32(b, math.Float32bits(at(i)))
	}
	return b
}

func marshalSegment(b []byte, s *l4segments.Segment) []byte {
	b = protowire.AppendTag(b, fieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(s.ID)))
	b = protowire.AppendTag(b, fieldTime, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(s.Time)))
	n := s.Len()
	b = appendPackedFloats(b, fieldX, n, func(i int) float32 { return s.Samples[i].X })
	b = appendPackedFloats(b, fieldY, n, func(i int) float32 { return s.Samples[i].Y })
	b = appendPackedFloats(b, fieldThick, n, func(i int) float32 { return s.Samples[i].Thick })
	b = appendPackedFloats(b, fieldScore, n, func(i int) float32 { return s.Samples[i].Score })
	return b
}

func writeProto(w io.Writer, t l4segments.Table) error {
	if _, err := w.Write(magicProto); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	var msg, buf []byte
	return eachSegment(t, func(s *l4segments.Segment) error {
		msg = marshalSegment(msg[:0], s)
		buf = protowire.AppendVarint(buf[:0], uint64(len(msg)))
		buf = append(buf, msg...)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("failed to write segment %d/%d: %w", s.Time, s.ID, err)
		}
		return nil
	})
}

func consumePackedFloats(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("packed float32 field has %d bytes", len(b))
	}
	out := make([]float32, 0, len(b)/4)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, math.Float32frombits(v))
		b = b[n:]
	}
	return out, nil
}

func unmarshalSegment(b []byte) (*l4segments.Segment, error) {
	var id, frame int64
	var x, y, thick, score []float32
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case (num == fieldID || num == fieldTime) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			if num == fieldID {
				id = protowire.DecodeZigZag(v)
			} else {
				frame = protowire.DecodeZigZag(v)
			}
			b = b[n:]
		case num >= fieldX && num <= fieldScore && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			vals, err := consumePackedFloats(v)
			if err != nil {
				return nil, err
			}
			switch num {
			case fieldX:
				x = append(x, vals...)
			case fieldY:
				y = append(y, vals...)
			case fieldThick:
				thick = append(thick, vals...)
			case fieldScore:
				score = append(score, vals...)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return l4segments.FromArrays(int(id), int(frame), x, y, thick, score)
}

func readProto(r *bufio.Reader) (l4segments.Table, error) {
	t := l4segments.NewTable()
	var msg []byte
	for rec := 0; ; rec++ {
		size, err := binary.ReadUvarint(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return t, nil
			}
			return nil, fmt.Errorf("%w: record %d length: %v", ErrFormat, rec, err)
		}
		if size > maxRecord {
			return nil, fmt.Errorf("%w: record %d has bad length %d", ErrFormat, rec, size)
		}
		if cap(msg) < int(size) {
			msg = make([]byte, size)
		}
		msg = msg[:size]
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("%w: record %d truncated: %v", ErrFormat, rec, err)
		}
		s, err := unmarshalSegment(msg)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrFormat, rec, err)
		}
		if err := t.Add(s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
	}
}
