// Package utils holds small test helpers shared across packages.
package utils

import (
	"runtime"
	"testing"
	"time"
)

// GoroutineLeakDetector asserts that a test does not leak goroutines.
// Server and session teardown paths are expected to reap every goroutine
// they started; the detector samples the count a few times to ride out
// scheduler lag before failing.
type GoroutineLeakDetector struct {
	t             *testing.T
	initial       int
	allowedGrowth int
	settle        time.Duration
}

// NewGoroutineLeakDetector creates a detector bound to the test
func NewGoroutineLeakDetector(t *testing.T) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:             t,
		allowedGrowth: 2,
		settle:        100 * time.Millisecond,
	}
}

// Start records the baseline goroutine count
func (d *GoroutineLeakDetector) Start() {
	time.Sleep(d.settle)
	d.initial = runtime.NumGoroutine()
}

// Check fails the test if the goroutine count stayed above the baseline
// plus the allowed growth after a settling period.
func (d *GoroutineLeakDetector) Check() {
	d.t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	var current int
	for {
		time.Sleep(d.settle)
		current = runtime.NumGoroutine()
		if current <= d.initial+d.allowedGrowth || time.Now().After(deadline) {
			break
		}
	}

	if current > d.initial+d.allowedGrowth {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		d.t.Errorf("goroutine leak: started with %d, ended with %d\n%s",
			d.initial, current, buf[:n])
	}
}
