package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/spool/internal/hook"
	"github.com/mattjoyce/spool/internal/log"
	"github.com/mattjoyce/spool/internal/protocol"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

// execPlugin writes a one-hook plugin running script and discovers it.
func execPlugin(t *testing.T, script string) *Plugin {
	t.Helper()
	root := t.TempDir()
	writePlugin(t, root, "p", manifestFor("p", "[mail]"), "#!/bin/sh\n"+script)
	catalog, err := Discover(root, nil)
	require.NoError(t, err)
	p, ok := catalog.Get("p")
	require.True(t, ok)
	return p
}

func TestExecHandlerAppliesResponse(t *testing.T) {
	p := execPlugin(t, `cat > request.json
echo '{"status":"ok","outcome":"stop","args":{"subject":"re: hi"},"claim":{"result":"sent"},"logs":[{"level":"debug","message":"x"}]}'
`)
	h := NewExecHandler(p, map[string]any{"smtp": "localhost"}, 5*time.Second)

	args := hook.NewArgs(map[string]any{"to": "a@example.com"})
	args.Event = "mail"
	outcome, err := h.Handle(context.Background(), args)
	require.NoError(t, err)

	assert.Equal(t, hook.Stop, outcome)
	assert.Equal(t, "re: hi", args.String("subject"))
	assert.Equal(t, "a@example.com", args.String("to"))
	assert.True(t, args.Claimed())
	assert.Equal(t, "p", args.ClaimedBy())
	assert.Equal(t, "sent", args.Result())

	raw, err := os.ReadFile(filepath.Join(p.Path, "request.json"))
	require.NoError(t, err)
	var req protocol.Request
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, protocol.Version, req.Protocol)
	assert.Equal(t, "mail", req.Hook)
	assert.Equal(t, "p", req.Plugin)
	assert.NotEmpty(t, req.InvocationID)
	assert.Equal(t, "a@example.com", req.Args["to"])
	assert.Equal(t, "localhost", req.Config["smtp"])
	assert.True(t, req.DeadlineAt.After(time.Now()))
}

func TestExecHandlerReportedError(t *testing.T) {
	p := execPlugin(t, `cat > /dev/null
echo '{"status":"error","error":"smtp down"}'
`)
	args := hook.NewArgs(nil)
	args.Event = "mail"
	_, err := NewExecHandler(p, nil, 5*time.Second).Handle(context.Background(), args)

	var reported *ReportedError
	require.ErrorAs(t, err, &reported)
	assert.Equal(t, "smtp down", reported.Message)
	assert.Equal(t, "mail", reported.Hook)
}

func TestExecHandlerNonZeroExitWithResponse(t *testing.T) {
	p := execPlugin(t, `cat > /dev/null
echo '{"status":"ok"}'
exit 3
`)
	args := hook.NewArgs(nil)
	args.Event = "mail"
	outcome, err := NewExecHandler(p, nil, 5*time.Second).Handle(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, hook.Continue, outcome)
}

func TestExecHandlerInvalidOutput(t *testing.T) {
	p := execPlugin(t, `cat > /dev/null
echo 'Traceback: boom'
echo 'oops' >&2
`)
	args := hook.NewArgs(nil)
	args.Event = "mail"
	_, err := NewExecHandler(p, nil, 5*time.Second).Handle(context.Background(), args)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestExecHandlerTimeout(t *testing.T) {
	p := execPlugin(t, "exec sleep 30\n")
	h := NewExecHandler(p, nil, 200*time.Millisecond)

	args := hook.NewArgs(nil)
	args.Event = "mail"
	start := time.Now()
	_, err := h.Handle(context.Background(), args)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecHandlerKillsAfterGrace(t *testing.T) {
	// An ignored SIGTERM survives exec, so only SIGKILL ends sleep.
	p := execPlugin(t, "trap '' TERM\nexec sleep 30\n")
	h := NewExecHandler(p, nil, 100*time.Millisecond)
	h.grace = 100 * time.Millisecond

	args := hook.NewArgs(nil)
	args.Event = "mail"
	start := time.Now()
	_, err := h.Handle(context.Background(), args)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecHandlerContextCancel(t *testing.T) {
	p := execPlugin(t, "exec sleep 30\n")
	h := NewExecHandler(p, nil, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	args := hook.NewArgs(nil)
	args.Event = "mail"
	_, err := h.Handle(ctx, args)
	require.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 8}
	n, err := b.Write([]byte("12345"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	n, err = b.Write([]byte("67890"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	_, _ = b.Write([]byte(strings.Repeat("x", 100)))
	assert.Equal(t, "12345678", b.String())
}
