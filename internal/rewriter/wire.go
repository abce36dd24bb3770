// Package rewriter implements the ONNX-style tensor-graph rewriter: it
// statically specialises dynamic dimensions and decomposes two operators
// constrained compute back-ends cannot execute natively. It is
// implemented directly against the protobuf wire format via
// google.golang.org/protobuf/encoding/protowire, covering only the
// message fields the rewriter touches — not a generated schema.
package rewriter

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one parsed top-level (tag, value) pair of a protobuf message.
// Raw holds the encoded payload only (not the tag, and for length-delimited
// fields not the length prefix either) so it can be re-emitted verbatim by
// message.encode without needing to understand its contents.
type field struct {
	Num protowire.Number
	Typ protowire.Type
	Raw []byte
}

// message is an ordered list of fields as parsed from the wire. Fields this
// package never interprets are passed through unchanged; fields it does
// interpret are decoded into Go values by the callers in this package
// (staticdims.go, decompose.go, rewriter.go) and re-serialised back into
// the Raw bytes before encode.
type message []field

// parseMessage decodes b into an ordered field list. It returns an error
// for any malformed tag or truncated value, which the top-level Rewrite
// entry point treats as "return the original bytes unchanged".
func parseMessage(b []byte) (message, error) {
	var msg message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("rewriter: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		var raw []byte
		var consumed int
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, fmt.Errorf("rewriter: bad varint: %w", protowire.ParseError(m))
			}
			raw = protowire.AppendVarint(nil, v)
			consumed = m
		case protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(b)
			if m < 0 {
				return nil, fmt.Errorf("rewriter: bad fixed32: %w", protowire.ParseError(m))
			}
			raw = protowire.AppendFixed32(nil, v)
			consumed = m
		case protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return nil, fmt.Errorf("rewriter: bad fixed64: %w", protowire.ParseError(m))
			}
			raw = protowire.AppendFixed64(nil, v)
			consumed = m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("rewriter: bad bytes: %w", protowire.ParseError(m))
			}
			raw = append([]byte(nil), v...)
			consumed = m
		default:
			return nil, fmt.Errorf("rewriter: unsupported wire type %d on field %d", typ, num)
		}
		b = b[consumed:]
		msg = append(msg, field{Num: num, Typ: typ, Raw: raw})
	}
	return msg, nil
}

// encode re-serialises the field list. Field order need not match the
// original — re-running the rewriter on its own output is idempotent
// modulo canonicalisation of any new value-info ordering.
func (m message) encode() []byte {
	var out []byte
	for _, f := range m {
		out = protowire.AppendTag(out, f.Num, f.Typ)
		switch f.Typ {
		case protowire.VarintType, protowire.Fixed32Type, protowire.Fixed64Type:
			out = append(out, f.Raw...)
		case protowire.BytesType:
			out = protowire.AppendBytes(out, f.Raw)
		}
	}
	return out
}

func (m message) first(num protowire.Number) (field, bool) {
	for _, f := range m {
		if f.Num == num {
			return f, true
		}
	}
	return field{}, false
}

func (m message) all(num protowire.Number) []field {
	var out []field
	for _, f := range m {
		if f.Num == num {
			out = append(out, f)
		}
	}
	return out
}

func (m message) varint(num protowire.Number) (uint64, bool) {
	f, ok := m.first(num)
	if !ok {
		return 0, false
	}
	v, _ := protowire.ConsumeVarint(f.Raw)
	return v, true
}

func (m message) str(num protowire.Number) (string, bool) {
	f, ok := m.first(num)
	if !ok {
		return "", false
	}
	return string(f.Raw), true
}

func (m message) sub(num protowire.Number) (message, bool) {
	f, ok := m.first(num)
	if !ok {
		return nil, false
	}
	sub, err := parseMessage(f.Raw)
	if err != nil {
		return nil, false
	}
	return sub, true
}

func (m message) allSub(num protowire.Number) []message {
	var out []message
	for _, f := range m.all(num) {
		sub, err := parseMessage(f.Raw)
		if err != nil {
			continue
		}
		out = append(out, sub)
	}
	return out
}

func appendVarintField(m message, num protowire.Number, v uint64) message {
	return append(m, field{Num: num, Typ: protowire.VarintType, Raw: protowire.AppendVarint(nil, v)})
}

func appendStringField(m message, num protowire.Number, s string) message {
	return append(m, field{Num: num, Typ: protowire.BytesType, Raw: []byte(s)})
}

func appendBytesField(m message, num protowire.Number, b []byte) message {
	return append(m, field{Num: num, Typ: protowire.BytesType, Raw: append([]byte(nil), b...)})
}

func appendSubField(m message, num protowire.Number, sub message) message {
	return append(m, field{Num: num, Typ: protowire.BytesType, Raw: sub.encode()})
}

// removeAll drops every field with the given number, preserving order of
// the rest.
func removeAll(m message, num protowire.Number) message {
	out := make(message, 0, len(m))
	for _, f := range m {
		if f.Num != num {
			out = append(out, f)
		}
	}
	return out
}
