package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/offlineq/internal/mutation"
)

// EnqueueResult is printed after a mutation is stored.
type EnqueueResult struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	PendingCount int    `json:"pendingCount"`
}

func (r EnqueueResult) Text() string {
	return fmt.Sprintf("queued %s (%s), %d pending", r.ID, r.Type, r.PendingCount)
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "enqueue <type> [payload-json]",
		Short: "Queue a mutation without sending it",
		Long: `Append a mutation to the persisted queue.

Nothing is sent: the queue is opened with connectivity forced off, so the
mutation waits for the next drain or serve. The payload defaults to null.
Types outside the application's known set are stored with a warning.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := "null"
			if len(args) == 2 {
				payload = args[1]
			}
			return runEnqueue(cmd, rootOpts, args[0], payload, userID)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user the mutation belongs to")
	return cmd
}

func runEnqueue(cmd *cobra.Command, opts *RootOptions, typ, payload, userID string) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	if !json.Valid([]byte(payload)) {
		return fail(f, WrapExitError(ExitCommandError, CodeArgument, fmt.Errorf("payload is not valid JSON: %s", payload)))
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return fail(f, err)
	}
	a, err := openApp(ctx, cfg, opts.logger(), forcedOffline)
	if err != nil {
		return fail(f, err)
	}
	defer a.Close()

	if err := a.start(ctx); err != nil {
		return fail(f, err)
	}

	id, err := a.queue.Enqueue(ctx, typ, json.RawMessage(payload), userID)
	if err != nil {
		return fail(f, WrapExitError(ExitCommandError, CodeArgument, err))
	}
	f.VerboseLog("stored %s under key %q", id, cfg.Queue.Key)
	if !mutation.IsKnownType(typ) {
		opts.logger().Warn("unknown mutation type, the remote may have no handler for it",
			"type", mutation.NormalizeType(typ), "id", id)
	}

	return f.Success(EnqueueResult{
		ID:           id,
		Type:         mutation.NormalizeType(typ),
		PendingCount: a.queue.PendingCount(),
	})
}
