package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	monerrors "github.com/gpusentry/gpusentry/internal/errors"
	"github.com/gpusentry/gpusentry/pkg/model"
)

var healthDetailed bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run one collection cycle and report verdicts",
	Long:  "Runs a single collection cycle and prints per-device verdicts.\nExits 2 when the system verdict reaches the configured fail threshold.",
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthDetailed, "detailed", false,
		"also print recommendations and fields the driver could not report")
}

func runHealth(_ *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.enum.Enumerate(); err != nil {
		return err
	}

	rt.agent.RunCycle(context.Background())
	snap, _, ok := rt.cache.Read()
	if !ok {
		return fmt.Errorf("%w: cycle exceeded %s", monerrors.ErrDeviceUnreachable, cfg.CycleCeiling)
	}

	printDeviceTable(os.Stdout, snap)
	fmt.Printf("\nSystem verdict: %s\n", strings.ToUpper(snap.SystemVerdict.String()))

	if healthDetailed {
		printHealthDetails(snap)
		if active := rt.errs.ActiveErrors(); len(active) > 0 {
			fmt.Println("\nActive errors:")
			for _, e := range active {
				fmt.Printf("  [%s] %s: %s\n", e.Code, e.Component, e.Message)
			}
		}
	}

	if snap.SystemVerdict >= cfg.FailVerdict() {
		return errUnhealthy
	}
	return nil
}

func printHealthDetails(snap *model.Snapshot) {
	for _, d := range snap.Devices {
		if len(d.Recommendations) == 0 && len(d.UnavailableFields) == 0 {
			continue
		}
		fmt.Printf("\nGPU %d (%s):\n", d.Device.Index, d.Device.UUID)
		for _, rec := range d.Recommendations {
			fmt.Printf("  recommendation: %s\n", rec)
		}
		if len(d.UnavailableFields) > 0 {
			fmt.Printf("  unavailable fields: %s\n", strings.Join(d.UnavailableFields, ", "))
		}
	}
}
