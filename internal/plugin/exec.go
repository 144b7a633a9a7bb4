package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/spool/internal/config"
	"github.com/mattjoyce/spool/internal/hook"
	"github.com/mattjoyce/spool/internal/log"
	"github.com/mattjoyce/spool/internal/protocol"
)

const (
	// maxStderrBytes caps the stderr kept from one invocation.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the wait between SIGTERM and SIGKILL.
	terminationGracePeriod = 5 * time.Second
)

// ErrTimeout is returned when a plugin outlives its timeout or the caller's
// context.
var ErrTimeout = errors.New("plugin execution timed out")

// ReportedError is a failure the plugin reported with status=error.
type ReportedError struct {
	Plugin  string
	Hook    string
	Message string
}

func (e *ReportedError) Error() string {
	return fmt.Sprintf("plugin %s failed on %s: %s", e.Plugin, e.Hook, e.Message)
}

// ExecHandler runs one exec plugin per dispatch.
type ExecHandler struct {
	plugin  *Plugin
	config  map[string]any
	timeout time.Duration
	grace   time.Duration
	logger  *slog.Logger
}

// NewExecHandler returns a handler invoking p with the given plugin config.
// A zero timeout uses config.DefaultPluginTimeout.
func NewExecHandler(p *Plugin, pluginConfig map[string]any, timeout time.Duration) *ExecHandler {
	if timeout <= 0 {
		timeout = config.DefaultPluginTimeout
	}
	return &ExecHandler{
		plugin:  p,
		config:  pluginConfig,
		timeout: timeout,
		grace:   terminationGracePeriod,
		logger:  log.WithPlugin(p.Name),
	}
}

// Handle sends args to the plugin and applies its response: returned args are
// merged, a claim is recorded under the plugin's name and the outcome is
// passed back to the dispatcher.
func (h *ExecHandler) Handle(ctx context.Context, args *hook.Args) (hook.Outcome, error) {
	req := &protocol.Request{
		Protocol:     protocol.Version,
		InvocationID: uuid.NewString(),
		Plugin:       h.plugin.Name,
		Hook:         args.Event,
		Args:         args.Snapshot(),
		Config:       h.config,
		DeadlineAt:   time.Now().Add(h.timeout).UTC(),
	}
	logger := h.logger.With("hook", args.Event, "invocation_id", req.InvocationID)

	resp, stderr, err := h.spawn(ctx, req, logger)
	if err != nil {
		if stderr != "" {
			logger.Warn("plugin stderr", "stderr", stderr)
		}
		return hook.Continue, err
	}

	for _, entry := range resp.Logs {
		logger.Log(ctx, log.ParseLevel(entry.Level), entry.Message)
	}
	if resp.Status == protocol.StatusError {
		return hook.Continue, &ReportedError{Plugin: h.plugin.Name, Hook: args.Event, Message: resp.Error}
	}

	for k, v := range resp.Args {
		args.Set(k, v)
	}
	if resp.Claim != nil {
		args.Claim(h.plugin.Name, resp.Claim.Result)
	}
	return hook.ParseOutcome(resp.Outcome)
}

// spawn runs the entrypoint, writes req to stdin and decodes stdout. On
// timeout or cancellation the process gets SIGTERM, then SIGKILL after the
// grace period.
func (h *ExecHandler) spawn(ctx context.Context, req *protocol.Request, logger *slog.Logger) (*protocol.Response, string, error) {
	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	// Not CommandContext: termination is escalated by hand below.
	cmd := exec.Command(h.plugin.Entrypoint)
	cmd.Dir = h.plugin.Path
	// Bounds Wait when a grandchild keeps the output pipes open.
	cmd.WaitDelay = time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, "", fmt.Errorf("create stdin pipe: %w", err)
	}
	var stdout bytes.Buffer
	stderr := &cappedBuffer{limit: maxStderrBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	logger.Debug("spawning plugin", "entrypoint", h.plugin.Entrypoint, "timeout", h.timeout)
	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("start process: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		writeErr <- protocol.EncodeRequest(stdin, req)
	}()

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case <-timer.C:
		logger.Warn("plugin execution timed out, sending SIGTERM")
		h.terminate(cmd, waitErr, logger)
		return nil, stderr.String(), fmt.Errorf("%w after %s", ErrTimeout, h.timeout)

	case <-ctx.Done():
		logger.Warn("dispatch cancelled, sending SIGTERM")
		h.terminate(cmd, waitErr, logger)
		return nil, stderr.String(), fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())

	case err := <-waitErr:
		if werr := <-writeErr; werr != nil && !errors.Is(werr, syscall.EPIPE) {
			return nil, stderr.String(), fmt.Errorf("encode request: %w", werr)
		}
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return nil, stderr.String(), fmt.Errorf("wait for process: %w", err)
			}
			logger.Warn("plugin exited with non-zero status", "exit_code", exitErr.ExitCode())
		}

		resp, raw, err := protocol.DecodeResponseLenient(&stdout)
		if err != nil {
			logger.Error("failed to decode plugin response", "error", err, "stdout", string(raw))
			return nil, stderr.String(), fmt.Errorf("decode response: %w", err)
		}
		return resp, stderr.String(), nil
	}
}

func (h *ExecHandler) terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) {
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.Error("failed to send SIGTERM", "error", err)
	}

	grace := time.NewTimer(h.grace)
	defer grace.Stop()

	select {
	case <-waitErr:
		logger.Info("plugin exited after SIGTERM")
	case <-grace.C:
		logger.Warn("plugin did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
}

// cappedBuffer keeps the first limit bytes written and drops the rest while
// still reporting full writes, so the child never blocks on stderr.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
