package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/offlineq/internal/analytics"
)

// TrackResult reports a recorded analytics event.
type TrackResult struct {
	Event    analytics.Event `json:"event"`
	Provider string          `json:"provider"`
	Pending  int             `json:"pending"`
}

func (r TrackResult) Text() string {
	return fmt.Sprintf("tracked %s via %s, %d records pending", r.Event, r.Provider, r.Pending)
}

// NewTrackCommand creates the track command.
func NewTrackCommand(rootOpts *RootOptions) *cobra.Command {
	var props []string
	var userID string

	cmd := &cobra.Command{
		Use:   "track <event>",
		Short: "Record an analytics event",
		Long: `Record one analytics event through the provider for the configured
environment and flush it.

In development the event is logged. In production it is queued under
analytics.key and sent to Kafka, or to the log when no brokers are set.
Property values are parsed as JSON when they can be and kept as strings
otherwise.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrack(cmd, rootOpts, args[0], props, userID)
		},
	}

	cmd.Flags().StringArrayVar(&props, "prop", nil, "event property as key=value (repeatable)")
	cmd.Flags().StringVar(&userID, "user", "", "identify this user before tracking")
	return cmd
}

func runTrack(cmd *cobra.Command, opts *RootOptions, name string, rawProps []string, userID string) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	event, ok := analytics.ParseEvent(name)
	if !ok {
		return fail(f, WrapExitError(ExitCommandError, CodeArgument, fmt.Errorf("unknown event %q", name)))
	}
	props, err := parseProperties(rawProps)
	if err != nil {
		return fail(f, WrapExitError(ExitCommandError, CodeArgument, err))
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

	an, err := a.newAnalytics()
	if err != nil {
		return fail(f, err)
	}
	if err := an.Initialize(ctx); err != nil {
		return fail(f, WrapExitError(ExitCommandError, CodeConfig, err))
	}
	if userID != "" {
		an.Identify(ctx, userID, nil)
	}
	an.Track(ctx, event, props)

	result := TrackResult{Event: event, Provider: "console"}
	if p, ok := an.Provider().(*analytics.OfflineProvider); ok {
		result.Provider = "offline"
		p.Wait()
		if err := p.Flush(ctx); err != nil {
			f.VerboseLog("flush failed: %v", err)
			result.Pending = len(p.Pending())
			if err := f.Success(result); err != nil {
				return err
			}
			return WrapExitError(ExitFailure, CodeNetwork, err)
		}
		result.Pending = len(p.Pending())
	}
	return f.Success(result)
}

// parseProperties turns key=value pairs into event properties.
func parseProperties(pairs []string) (analytics.Properties, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	props := make(analytics.Properties, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("property %q is not key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		props[key] = v
	}
	return props, nil
}
