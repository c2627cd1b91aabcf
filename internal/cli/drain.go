package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// DefaultDrainTimeout bounds one drain run.
const DefaultDrainTimeout = 2 * time.Minute

// DrainResult reports one processing pass.
type DrainResult struct {
	Before    int      `json:"before"`
	Remaining int      `json:"remaining"`
	Handled   []string `json:"handled"`
	TimedOut  bool     `json:"timedOut,omitempty"`
}

func (r DrainResult) Text() string {
	s := fmt.Sprintf("processed %d of %d, %d remaining", r.Before-r.Remaining, r.Before, r.Remaining)
	if r.TimedOut {
		s += " (timed out)"
	}
	return s
}

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Send pending mutations to the backend",
		Long: `Run one processing pass against remote.base_url with connectivity
forced on.

Each mutation is attempted once. Failures count toward queue.max_retries and
stay queued unless they reach it. Types without a configured endpoint follow
queue.missing_handler. Exits 1 when mutations remain.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(cmd, rootOpts, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", DefaultDrainTimeout, "give up and stop the pass after this long")
	return cmd
}

func runDrain(cmd *cobra.Command, opts *RootOptions, timeout time.Duration) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	cfg, err := loadConfig(opts)
	if err != nil {
		return fail(f, err)
	}
	if cfg.Remote.BaseURL == "" {
		return fail(f, WrapExitError(ExitCommandError, CodeConfig, fmt.Errorf("remote.base_url is required to drain")))
	}

	a, err := openApp(ctx, cfg, opts.logger(), forcedOnline)
	if err != nil {
		return fail(f, err)
	}
	defer a.Close()

	result := DrainResult{Before: len(a.persisted(ctx))}
	if result.Handled, err = a.registerRemote(); err != nil {
		return fail(f, err)
	}
	f.VerboseLog("handlers registered for %v", result.Handled)

	// Initialize starts the pass since the source reports online.
	if err := a.start(ctx); err != nil {
		return fail(f, err)
	}

	done := make(chan struct{})
	go func() {
		a.queue.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		result.TimedOut = true
	case <-ctx.Done():
	}

	// Destroy interrupts any attempt still in flight without counting it.
	a.queue.Destroy()
	result.Remaining = len(a.persisted(ctx))

	if err := f.Success(result); err != nil {
		return err
	}
	if result.Remaining > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d mutations remain", CodeRemaining, result.Remaining))
	}
	return nil
}
