package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	monerrors "github.com/gpusentry/gpusentry/internal/errors"
	"github.com/gpusentry/gpusentry/internal/export"
)

var (
	exportFormatName string
	exportOutput     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run one collection cycle and render the snapshot",
	Long:  "Runs a single collection cycle and renders the snapshot to stdout or a file.\nAn output path ending in .zst is zstd-compressed.",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormatName, "format", "json",
		"output format: exposition (alias prometheus), json (alias structured), or csv (alias tabular)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-",
		"output file path, or - for stdout")
}

func runExport(_ *cobra.Command, _ []string) error {
	format, err := export.ParseFormat(exportFormatName)
	if err != nil {
		return err
	}

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

	if exportOutput == "-" {
		return export.Render(os.Stdout, format, snap)
	}
	return export.WriteFile(exportOutput, format, snap)
}
