package queue

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/spool/internal/jsonnum"
)

// Encoded payload layout:
//
//	magic (4 bytes) | blake3-256 of body (32 bytes) | JSON object body
var codecMagic = []byte{'s', 'p', 'l', 1}

const digestSize = 32

// Encode serialises payload. Values must be JSON-encodable.
func Encode(payload map[string]any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	sum := blake3.Sum256(body)

	out := make([]byte, 0, len(codecMagic)+digestSize+len(body))
	out = append(out, codecMagic...)
	out = append(out, sum[:]...)
	return append(out, body...), nil
}

// Decode reverses Encode. Any framing, digest or JSON failure wraps
// ErrPoisonPayload. Whole numbers decode as int64 (uint64 above its range),
// other numbers as float64; see jsonnum.Normalize.
func Decode(data []byte) (map[string]any, error) {
	if len(data) < len(codecMagic)+digestSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrPoisonPayload, len(data))
	}
	if !bytes.Equal(data[:len(codecMagic)], codecMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrPoisonPayload)
	}
	digest := data[len(codecMagic) : len(codecMagic)+digestSize]
	body := data[len(codecMagic)+digestSize:]

	sum := blake3.Sum256(body)
	if !bytes.Equal(digest, sum[:]) {
		return nil, fmt.Errorf("%w: digest mismatch", ErrPoisonPayload)
	}

	var payload map[string]any
	dec := jsonnum.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoisonPayload, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrPoisonPayload)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: body is not an object", ErrPoisonPayload)
	}
	jsonnum.Normalize(payload)
	return payload, nil
}
