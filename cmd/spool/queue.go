package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/mattjoyce/spool/internal/jsonnum"
	"github.com/mattjoyce/spool/internal/queue"
	"github.com/mattjoyce/spool/internal/scheduler"
)

func runQueueNoun(args []string) int {
	return runNoun("queue", args, map[string]func([]string) int{
		"drain":   runQueueDrain,
		"enqueue": runQueueEnqueue,
		"stats":   runQueueStats,
		"dead":    runQueueDead,
	})
}

// openRuntime loads the config at the --config flag and wires a runtime.
func openRuntime(ctx context.Context, configPath string) (*runtime, int) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, exitError
	}
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		return nil, exitError
	}
	return rt, exitOK
}

// runQueueDrain fires due triggers, then processes work until the queue is
// empty. It exits 2 when work remains, for cron wrappers that loop.
func runQueueDrain(args []string) int {
	fs := flag.NewFlagSet("queue drain", flag.ContinueOnError)
	configPath := configFlag(fs)
	maxItems := fs.Int("max", 0, "Stop after this many items (0 = no limit)")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	ctx := context.Background()
	rt, code := openRuntime(ctx, *configPath)
	if rt == nil {
		return code
	}
	defer rt.Close()

	if _, err := rt.manager.RecoverStale(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Recovering stale claims failed: %v\n", err)
		return exitError
	}
	if _, err := rt.triggers.FireDue(ctx); err != nil {
		// Trigger failures do not block draining.
		fmt.Fprintf(os.Stderr, "Trigger error: %v\n", err)
	}

	res, err := scheduler.Drain(ctx, rt.manager, *maxItems)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Drain failed after %d items: %v\n", res.Processed, err)
		return exitError
	}

	if *asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(res)
	} else {
		fmt.Printf("processed %d items", res.Processed)
		statuses := make([]string, 0, len(res.ByStatus))
		for s := range res.ByStatus {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Printf(" %s=%d", s, res.ByStatus[queue.PollStatus(s)])
		}
		fmt.Println()
	}
	if res.Remaining {
		return exitWorkRemains
	}
	return exitOK
}

func runQueueEnqueue(args []string) int {
	fs := flag.NewFlagSet("queue enqueue", flag.ContinueOnError)
	configPath := configFlag(fs)
	payload := fs.String("payload", "{}", "JSON object payload")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: spool queue enqueue [--payload JSON] <transport>")
		return exitError
	}

	body, err := jsonnum.Object([]byte(*payload))
	if err != nil {
		fmt.Fprintln(os.Stderr, "--payload must be a JSON object")
		return exitError
	}

	ctx := context.Background()
	rt, code := openRuntime(ctx, *configPath)
	if rt == nil {
		return code
	}
	defer rt.Close()

	id, err := rt.manager.Enqueue(ctx, body, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Enqueue failed: %v\n", err)
		return exitError
	}
	fmt.Println(id)
	return exitOK
}

func runQueueStats(args []string) int {
	fs := flag.NewFlagSet("queue stats", flag.ContinueOnError)
	configPath := configFlag(fs)
	asJSON := fs.Bool("json", false, "Print stats as JSON")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	ctx := context.Background()
	rt, code := openRuntime(ctx, *configPath)
	if rt == nil {
		return code
	}
	defer rt.Close()

	st, err := rt.manager.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
		return exitError
	}
	if *asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(st)
		return exitOK
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRANSPORT\tITEMS")
	names := make([]string, 0, len(st.ByTransport))
	for name := range st.ByTransport {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%d\n", name, st.ByTransport[name])
	}
	fmt.Fprintf(tw, "total\t%d\nclaimed\t%d\ndead letters\t%d\n", st.Total, st.Claimed, st.DeadLetters)
	_ = tw.Flush()
	return exitOK
}

func runQueueDead(args []string) int {
	fs := flag.NewFlagSet("queue dead", flag.ContinueOnError)
	configPath := configFlag(fs)
	limit := fs.Int("limit", 20, "Maximum dead letters to list")
	replay := fs.String("replay", "", "Requeue the dead letter with this id")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	ctx := context.Background()
	rt, code := openRuntime(ctx, *configPath)
	if rt == nil {
		return code
	}
	defer rt.Close()

	if *replay != "" {
		id, err := rt.manager.Replay(ctx, *replay)
		if errors.Is(err, queue.ErrItemNotFound) {
			fmt.Fprintf(os.Stderr, "Dead letter not found: %s\n", *replay)
			return exitError
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
			return exitError
		}
		fmt.Println(id)
		return exitOK
	}

	list, err := rt.manager.DeadLetters(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Listing dead letters failed: %v\n", err)
		return exitError
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTRANSPORT\tATTEMPTS\tFAILED AT\tLAST ERROR")
	for _, dl := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", dl.ID, dl.Transport, dl.Attempts, dl.FailedAt.Format("2006-01-02 15:04:05"), dl.LastError)
	}
	_ = tw.Flush()
	return exitOK
}
