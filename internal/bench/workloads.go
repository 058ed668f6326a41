package bench

import (
	"context"
	"time"

	"github.com/gpusentry/gpusentry/pkg/model"
)

// measurement is a workload's raw output before the runner wraps it in a
// BenchmarkResult.
type measurement struct {
	iterations    int
	gflops        *float64
	bandwidthGBps *float64
}

// simpleOps is the size of one simple-workload repetition.
const simpleOps = 5_000_000

// matrixMultiply measures dense single-precision compute throughput over the
// requested number of repetitions. The context is checked between output rows
// so a timeout interrupts the run mid-matrix rather than after it.
func matrixMultiply(ctx context.Context, n, iterations int) (measurement, error) {
	a := make([]float32, n*n)
	b := make([]float32, n*n)
	c := make([]float32, n*n)
	for i := range a {
		a[i] = float32(i%7) * 0.5
		b[i] = float32(i%11) * 0.25
	}

	start := time.Now()
	for iter := 0; iter < iterations; iter++ {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return measurement{}, err
			}
			for j := 0; j < n; j++ {
				var sum float32
				row := i * n
				for k := 0; k < n; k++ {
					sum += a[row+k] * b[k*n+j]
				}
				c[row+j] = sum
			}
		}
	}
	elapsed := time.Since(start)

	ops := 2 * float64(n) * float64(n) * float64(n) * float64(iterations)
	gflops := ops / elapsed.Seconds() / 1e9
	return measurement{
		iterations: iterations,
		gflops:     model.Float64(gflops),
	}, nil
}

// memoryBandwidth measures sustained copy throughput over a buffer of the
// given size. Each iteration reads the source and writes the destination, so
// the reported rate counts both directions.
func memoryBandwidth(ctx context.Context, sizeMB, iterations int) (measurement, error) {
	size := sizeMB * 1024 * 1024
	src := make([]byte, size)
	dst := make([]byte, size)
	for i := range src {
		src[i] = byte(i)
	}

	start := time.Now()
	for iter := 0; iter < iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return measurement{}, err
		}
		copy(dst, src)
	}
	elapsed := time.Since(start)

	moved := 2 * float64(size) * float64(iterations)
	gbps := moved / elapsed.Seconds() / 1e9
	return measurement{
		iterations:    iterations,
		bandwidthGBps: model.Float64(gbps),
	}, nil
}

// simple is a fast smoke workload: a scalar arithmetic loop that proves the
// device slot can be acquired and a run can complete within budget.
func simple(ctx context.Context, iterations int) (measurement, error) {
	acc := 1.0
	for iter := 0; iter < iterations; iter++ {
		for i := 0; i < simpleOps; i++ {
			if i%100_000 == 0 {
				if err := ctx.Err(); err != nil {
					return measurement{}, err
				}
			}
			acc = acc*1.0000001 + float64(i%3)
		}
	}
	_ = acc
	return measurement{iterations: iterations}, nil
}
