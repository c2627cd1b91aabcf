package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/offlineq/internal/config"
	"github.com/roach88/offlineq/internal/mutation"
	"github.com/roach88/offlineq/internal/netstate"
)

// ListResult holds the pending mutations in processing order.
type ListResult struct {
	Mutations []mutation.Mutation `json:"mutations"`
}

func (r ListResult) Text() string {
	if len(r.Mutations) == 0 {
		return "no pending mutations"
	}
	var b strings.Builder
	for i, m := range r.Mutations {
		if i > 0 {
			b.WriteByte('\n')
		}
		queued := time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339)
		fmt.Fprintf(&b, "%s  %-20s retries=%d  %s  %s", m.ID, m.Type, m.Retries, queued, m.Payload)
		if m.UserID != "" {
			fmt.Fprintf(&b, "  user=%s", m.UserID)
		}
	}
	return b.String()
}

// StatusResult is the queue summary shown by status.
type StatusResult struct {
	PendingCount        int    `json:"pendingCount"`
	HasPendingMutations bool   `json:"hasPendingMutations"`
	IsOnline            bool   `json:"isOnline"`
	NetworkType         string `json:"networkType,omitempty"`
}

func (r StatusResult) Text() string {
	online := "offline"
	if r.IsOnline {
		online = "online"
	}
	if r.NetworkType != "" {
		online += " (" + r.NetworkType + ")"
	}
	return fmt.Sprintf("%d pending, %s", r.PendingCount, online)
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List pending mutations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			var result ListResult
			err := withOfflineQueue(cmd.Context(), rootOpts, func(a *app) error {
				result.Mutations = a.queue.PendingMutations()
				if result.Mutations == nil {
					result.Mutations = []mutation.Mutation{}
				}
				return nil
			})
			if err != nil {
				return fail(f, err)
			}
			return f.Success(result)
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending count and connectivity",
		Long: `Show how many mutations are pending and whether the configured
connectivity source currently reports a connection. With network.probe_addr
set, the address is dialed once.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := cmd.Context()

			var result StatusResult
			var cfg config.Config
			err := withOfflineQueue(ctx, rootOpts, func(a *app) error {
				cfg = a.cfg
				result.PendingCount = a.queue.PendingCount()
				result.HasPendingMutations = a.queue.HasPendingMutations()
				return nil
			})
			if err != nil {
				return fail(f, err)
			}

			st, err := currentNetwork(ctx, cfg)
			if err != nil {
				return fail(f, WrapExitError(ExitCommandError, CodeNetwork, err))
			}
			result.IsOnline = st.Online()
			result.NetworkType = st.Type
			return f.Success(result)
		},
	}
}

// withOfflineQueue opens the queue with connectivity forced off, so no
// pass can run, and calls fn with it initialized.
func withOfflineQueue(ctx context.Context, opts *RootOptions, fn func(*app) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, opts.logger(), forcedOffline)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.start(ctx); err != nil {
		return err
	}
	return fn(a)
}

// currentNetwork resolves connectivity from the configured source once.
func currentNetwork(ctx context.Context, cfg config.Config) (netstate.State, error) {
	if cfg.Network.ProbeAddr == "" {
		return netstate.StateOf(cfg.Network.InitiallyOnline, "manual"), nil
	}
	return netstate.NewProbe(cfg.Network.ProbeAddr, cfg.Network.ProbeInterval).Fetch(ctx)
}
