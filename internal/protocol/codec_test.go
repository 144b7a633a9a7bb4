package protocol

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		wantErr bool
		checkFn func(t *testing.T, output string)
	}{
		{
			name: "valid request",
			req: &Request{
				Protocol:     Version,
				InvocationID: "inv-123",
				Plugin:       "notify",
				Hook:         "mail",
				Args:         map[string]any{"to": "a@example.com"},
				DeadlineAt:   time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC),
			},
			checkFn: func(t *testing.T, output string) {
				for _, want := range []string{`"protocol":1`, `"invocation_id":"inv-123"`, `"hook":"mail"`, `"to":"a@example.com"`} {
					if !strings.Contains(output, want) {
						t.Errorf("output missing %s: %s", want, output)
					}
				}
				if strings.Contains(output, `"config"`) {
					t.Error("empty config should be omitted")
				}
			},
		},
		{
			name:    "unsupported protocol version",
			req:     &Request{Protocol: 2, Hook: "mail"},
			wantErr: true,
		},
		{
			name:    "missing hook",
			req:     &Request{Protocol: Version},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := EncodeRequest(&buf, tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("EncodeRequest() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, buf.String())
			}
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		checkFn func(t *testing.T, resp *Response)
	}{
		{
			name:  "ok with args",
			input: `{"status":"ok","args":{"subject":"hi"}}`,
			checkFn: func(t *testing.T, resp *Response) {
				if resp.Args["subject"] != "hi" {
					t.Errorf("args not parsed: %v", resp.Args)
				}
			},
		},
		{
			name:  "stop with claim",
			input: `{"status":"ok","outcome":"stop","claim":{"result":42}}`,
			checkFn: func(t *testing.T, resp *Response) {
				if resp.Outcome != "stop" {
					t.Errorf("want outcome=stop, got %q", resp.Outcome)
				}
				if resp.Claim == nil || resp.Claim.Result != int64(42) {
					t.Errorf("claim not parsed: %+v", resp.Claim)
				}
			},
		},
		{
			name:  "error response",
			input: `{"status":"error","error":"smtp down"}`,
			checkFn: func(t *testing.T, resp *Response) {
				if resp.Error != "smtp down" {
					t.Errorf("want error message, got %q", resp.Error)
				}
			},
		},
		{
			name:  "logs",
			input: `{"status":"ok","logs":[{"level":"info","message":"sent"}]}`,
			checkFn: func(t *testing.T, resp *Response) {
				if len(resp.Logs) != 1 || resp.Logs[0].Message != "sent" {
					t.Errorf("logs not parsed: %+v", resp.Logs)
				}
			},
		},
		{
			name:  "large integer args",
			input: `{"status":"ok","args":{"id":9007199254740993,"ratio":0.5}}`,
			checkFn: func(t *testing.T, resp *Response) {
				if resp.Args["id"] != int64(9007199254740993) {
					t.Errorf("id lost precision: %#v", resp.Args["id"])
				}
				if resp.Args["ratio"] != 0.5 {
					t.Errorf("want ratio 0.5, got %#v", resp.Args["ratio"])
				}
			},
		},
		{name: "missing status", input: `{"args":{}}`, wantErr: true},
		{name: "invalid status", input: `{"status":"maybe"}`, wantErr: true},
		{name: "error without message", input: `{"status":"error"}`, wantErr: true},
		{name: "invalid outcome", input: `{"status":"ok","outcome":"retry"}`, wantErr: true},
		{name: "unknown field", input: `{"status":"ok","events":[]}`, wantErr: true},
		{name: "invalid JSON", input: `{not json}`, wantErr: true},
		{name: "empty input", input: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeResponse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, resp)
			}
		})
	}
}

func TestDecodeResponseLenient(t *testing.T) {
	resp, raw, err := DecodeResponseLenient(strings.NewReader(`{"status":"ok","extra":true}`))
	if err != nil {
		t.Fatalf("DecodeResponseLenient() error = %v", err)
	}
	if resp.Status != StatusOK {
		t.Errorf("want status ok, got %q", resp.Status)
	}
	if len(raw) == 0 {
		t.Error("raw bytes should be returned")
	}

	resp, _, err = DecodeResponseLenient(strings.NewReader(`{"status":"ok","args":{"n":18446744073709551615}}`))
	if err != nil {
		t.Fatalf("DecodeResponseLenient() error = %v", err)
	}
	if resp.Args["n"] != uint64(18446744073709551615) {
		t.Errorf("n lost precision: %#v", resp.Args["n"])
	}

	_, raw, err = DecodeResponseLenient(strings.NewReader("traceback: boom"))
	if err == nil {
		t.Fatal("want error for non-JSON output")
	}
	if string(raw) != "traceback: boom" {
		t.Errorf("raw output not returned: %q", raw)
	}

	if _, _, err := DecodeResponseLenient(strings.NewReader("")); err == nil {
		t.Error("want error for empty output")
	}
}
