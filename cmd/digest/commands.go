package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gamecatalog/backend/internal/app"
	"gamecatalog/backend/internal/config"
	"gamecatalog/backend/internal/digest"
	"gamecatalog/backend/internal/logging"
)

// builder opens the App; tests swap it for one over sqlite.
type builder func(ctx context.Context) (*app.App, error)

func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat, nil)
	if err := cfg.ValidateDigest(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return app.New(ctx, cfg, logger)
}

func newRootCmd(build builder) *cobra.Command {
	root := &cobra.Command{
		Use:           "digest",
		Short:         "Weekly upcoming releases digest",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSendCmd(build), newNextCmd(build), newScheduleCmd(build), newSeedCmd(build))
	return root
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

// progressPrinter writes one line per digest event.
func progressPrinter(out io.Writer) digest.ObserverFunc {
	return func(e digest.Event) {
		switch e.Type {
		case digest.EventSent:
			fmt.Fprintf(out, "Email sent to %s\n", e.Recipient)
		case digest.EventFailed:
			fmt.Fprintf(out, "Could not send to %s: %s\n", e.Recipient, e.Error)
		case digest.EventNothingToSend:
			fmt.Fprintf(out, "Nothing to send: %s\n", e.Message)
		}
	}
}

func newSendCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "send",
		Short: "Send the digest now",
		Long: "Sends the digest to every newsletter subscriber. Failed recipients are " +
			"reported and do not change the exit status.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := build(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			a.Job.AddObserver(progressPrinter(out))

			report, err := a.Job.Run(ctx)
			if err != nil {
				return err
			}
			if report.Outcome == digest.OutcomeCompleted {
				fmt.Fprintf(out, "Emails sent successfully! (%d sent, %d failed)\n", report.Succeeded, report.Failed)
			}
			return nil
		},
	}
}

func newNextCmd(build builder) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print the next scheduled digest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			trigger, err := a.Trigger(nil)
			if err != nil {
				return err
			}
			last, err := a.Markers.LastFired(cmd.Context(), "digest")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !last.IsZero() {
				fmt.Fprintf(out, "Last run:  %s\n", last.In(a.Location).Format(time.RFC1123))
			}
			from := time.Now()
			if last.After(from) {
				from = last
			}
			for i := 0; i < count; i++ {
				from = trigger.NextAfter(from)
				fmt.Fprintf(out, "Next run:  %s\n", from.Format(time.RFC1123))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of upcoming runs to print")
	return cmd
}

func newScheduleCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the digest scheduler in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := build(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			a.Job.AddObserver(progressPrinter(cmd.OutOrStdout()))
			trigger, err := a.Trigger(nil)
			if err != nil {
				return err
			}
			if err := trigger.Serve(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
