package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAPISlowDeviceDoesNotBlockOthers(t *testing.T) {
	temp := 55.0
	slow := &FakeDevice{
		Identity: Identity{UUID: "GPU-aaa", Name: "Slow"},
		Latency:  200 * time.Millisecond,
	}
	fast := &FakeDevice{
		Identity:    Identity{UUID: "GPU-bbb", Name: "Fast"},
		Temperature: &temp,
	}
	api := NewFakeAPI(slow, fast)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = api.Temperature(0, SensorCore)
	}()

	// Give the slow query time to start sleeping before timing the fast one.
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	got, err := api.Temperature(1, SensorCore)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 55.0, got)
	assert.Less(t, elapsed, 100*time.Millisecond,
		"fast device query must not wait out the slow device's latency")

	<-done
}
