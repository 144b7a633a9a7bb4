// Package jsonnum keeps JSON numbers exact when decoding into untyped values.
//
// encoding/json decodes every number into float64 by default, which silently
// rounds integers above 2^53. Decoders here use UseNumber and then convert each
// json.Number with Normalize.
package jsonnum

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
)

// NewDecoder returns a decoder that yields json.Number for numbers. Pass the
// decoded value through Normalize before handing it out.
func NewDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// ErrNotObject is returned by Object when the document is not a JSON object.
var ErrNotObject = errors.New("not a JSON object")

// Object decodes data, which must hold exactly one JSON object, and
// normalises its numbers.
func Object(data []byte) (map[string]any, error) {
	var obj map[string]any
	dec := NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON object")
	}
	if obj == nil {
		return nil, ErrNotObject
	}
	return Normalize(obj).(map[string]any), nil
}

// Normalize walks v and replaces every json.Number:
//
//	integer literal within int64        -> int64
//	integer literal within uint64       -> uint64
//	larger integer literal              -> json.Number, unchanged
//	anything else (fraction, exponent)  -> float64
//
// Maps and slices are rewritten in place.
func Normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		return number(x)
	case map[string]any:
		for k, e := range x {
			x[k] = Normalize(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = Normalize(e)
		}
		return x
	default:
		return v
	}
}

func number(n json.Number) any {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u
		}
		return n
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n
}
