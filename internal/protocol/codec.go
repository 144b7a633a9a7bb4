package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mattjoyce/spool/internal/jsonnum"
)

// EncodeRequest writes req to w as a single JSON document.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}
	if req.Hook == "" {
		return fmt.Errorf("request missing hook")
	}
	if err := json.NewEncoder(w).Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return nil
}

// DecodeResponse strictly decodes a Response from r. Unknown fields are
// rejected. Numbers in Args and Claim keep full precision (see
// jsonnum.Normalize).
func DecodeResponse(r io.Reader) (*Response, error) {
	var resp Response
	decoder := jsonnum.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := validate(&resp); err != nil {
		return nil, err
	}
	normalize(&resp)
	return &resp, nil
}

// DecodeResponseLenient reads all of r and decodes it, tolerating unknown
// fields. The raw bytes are returned for logging when decoding fails.
func DecodeResponseLenient(r io.Reader) (*Response, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) == 0 {
		return nil, data, fmt.Errorf("plugin produced no output on stdout")
	}

	var resp Response
	if err := jsonnum.NewDecoder(bytes.NewReader(data)).Decode(&resp); err != nil {
		return nil, data, fmt.Errorf("plugin output is not valid JSON: %w", err)
	}
	if err := validate(&resp); err != nil {
		return nil, data, err
	}
	normalize(&resp)
	return &resp, data, nil
}

func normalize(resp *Response) {
	jsonnum.Normalize(resp.Args)
	if resp.Claim != nil {
		resp.Claim.Result = jsonnum.Normalize(resp.Claim.Result)
	}
}

func validate(resp *Response) error {
	switch resp.Status {
	case "":
		return fmt.Errorf("response missing required field: status")
	case StatusOK:
	case StatusError:
		if resp.Error == "" {
			return fmt.Errorf("response has status=error but no error message")
		}
	default:
		return fmt.Errorf("invalid status value: %q (must be 'ok' or 'error')", resp.Status)
	}
	switch resp.Outcome {
	case "", "continue", "stop":
	default:
		return fmt.Errorf("invalid outcome value: %q (must be 'continue' or 'stop')", resp.Outcome)
	}
	return nil
}
