// Package mathutil provides the small statistical helpers the adaptive
// throttle uses to track latency trends over a bounded sliding window.
package mathutil

import "math"

// Window is a fixed-capacity ring buffer of float64 samples with running
// mean/stddev queries.
type Window struct {
	samples  []float64
	capacity int
	next     int
	filled   bool
}

// NewWindow creates a Window holding up to capacity samples.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{samples: make([]float64, capacity), capacity: capacity}
}

// Add records a new sample, evicting the oldest once the window is full.
func (w *Window) Add(v float64) {
	w.samples[w.next] = v
	w.next = (w.next + 1) % w.capacity
	if w.next == 0 {
		w.filled = true
	}
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	if w.filled {
		return w.capacity
	}
	return w.next
}

// Mean returns the arithmetic mean of the held samples, or 0 if empty.
func (w *Window) Mean() float64 {
	n := w.Len()
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += w.samples[i]
	}
	return sum / float64(n)
}

// StdDev returns the population standard deviation of the held samples.
func (w *Window) StdDev() float64 {
	n := w.Len()
	if n < 2 {
		return 0
	}
	mean := w.Mean()
	sumSq := 0.0
	for i := 0; i < n; i++ {
		d := w.samples[i] - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}
