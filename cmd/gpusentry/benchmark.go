package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gpusentry/gpusentry/pkg/model"
)

var (
	benchmarkKind       string
	benchmarkGPU        string
	benchmarkIterations int
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Run a synthetic workload against one or all devices",
	RunE:  runBenchmark,
}

func init() {
	benchmarkCmd.Flags().StringVar(&benchmarkKind, "kind", string(model.BenchmarkSimple),
		"workload kind: matrix_multiply, memory_bandwidth, or simple")
	benchmarkCmd.Flags().StringVar(&benchmarkGPU, "gpu", "",
		"target device by logical index or UUID (default: all devices)")
	benchmarkCmd.Flags().IntVar(&benchmarkIterations, "iterations", 0,
		"workload repetitions (default: GPUSENTRY_BENCHMARK_ITERATIONS)")
}

func runBenchmark(_ *cobra.Command, _ []string) error {
	kind := model.BenchmarkKind(benchmarkKind)
	switch kind {
	case model.BenchmarkMatrixMultiply, model.BenchmarkMemoryBandwidth, model.BenchmarkSimple:
	default:
		return fmt.Errorf("unknown benchmark kind %q", benchmarkKind)
	}
	if benchmarkIterations < 0 {
		return fmt.Errorf("iterations must be >= 1, got %d", benchmarkIterations)
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	devices, err := rt.enum.Enumerate()
	if err != nil {
		return err
	}
	targets, err := selectDevices(devices, benchmarkGPU)
	if err != nil {
		return err
	}

	ctx := context.Background()
	results := make([]model.BenchmarkResult, 0, len(targets))
	var firstErr error
	for _, dev := range targets {
		result, err := rt.runner.Run(ctx, kind, dev, benchmarkIterations)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if result.Outcome != "" {
			results = append(results, result)
			rt.cache.RecordBenchmark(result)
		}
	}

	printBenchmarkTable(os.Stdout, results)
	return firstErr
}

func selectDevices(devices []model.Device, selector string) ([]model.Device, error) {
	if selector == "" {
		return devices, nil
	}
	for _, d := range devices {
		if d.UUID == selector || fmt.Sprintf("%d", d.Index) == selector {
			return []model.Device{d}, nil
		}
	}
	return nil, fmt.Errorf("no device matches %q", selector)
}
