package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var monitorDuration time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Continuously collect and print device tables",
	Long:  "Runs collection cycles at the configured interval and prints a device table after each one. Stop with Ctrl-C or --duration.",
	RunE:  runMonitor,
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorDuration, "duration", 0,
		"stop after this long, e.g. 5m (0 = run until interrupted)")
}

func runMonitor(_ *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.enum.Enumerate(); err != nil {
		return err
	}

	ctx, cancel := monitorContext(context.Background(), monitorDuration)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		cancel()
	}()

	monitorLoop(ctx, cfg.CollectionInterval, func(ctx context.Context) {
		rt.agent.RunCycle(ctx)
		if snap, _, ok := rt.cache.Read(); ok {
			fmt.Printf("\n%s  system: %s\n",
				snap.Timestamp.Local().Format(time.RFC3339),
				strings.ToUpper(snap.SystemVerdict.String()))
			printDeviceTable(os.Stdout, snap)
		}
	})
	return nil
}

// monitorContext bounds the run to d when d > 0; otherwise the context only
// ends on cancel.
func monitorContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}

// monitorLoop runs step once per interval until the context ends. A context
// that is already done never runs a step.
func monitorLoop(ctx context.Context, interval time.Duration, step func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		step(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
