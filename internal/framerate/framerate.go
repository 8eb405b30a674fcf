// Package framerate measures the delivered frame rate of a live source.
//
// A Meter keeps the arrival times of the most recent frames in a ring and
// computes rate statistics over that window on demand. Observe is cheap and
// safe to call from a streaming thread.
package framerate

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultWindow is the number of arrivals a Meter keeps
	DefaultWindow = 120

	// rate deviation allowed for a stable source, as a fraction of the mean
	rateStabilityThreshold = 0.15

	// mean jitter allowed for a stable source, as a fraction of the expected
	// inter-frame interval
	jitterStabilityThreshold = 0.20
)

// Stats summarizes a window of frame arrivals
type Stats struct {
	Frames   int
	Duration time.Duration

	Mean   float64 // frames per second over the window
	StdDev float64 // of the instantaneous rate
	Min    float64
	Max    float64

	JitterMean time.Duration
	JitterMax  time.Duration

	// Stable: StdDev < 15% of Mean and JitterMean < 20% of the expected
	// interval
	Stable bool
}

// Compute derives Stats from ordered arrival times
//
// Algorithm:
//  1. Mean = (n-1) / (last - first)
//  2. Instantaneous rate per positive interval, min/max/stddev around Mean
//  3. Jitter = |interval - 1/Mean| per interval, mean and max
//
// Fewer than two arrivals, or a zero span, give zero rates and Stable=false.
func Compute(times []time.Time) Stats {
	n := len(times)
	st := Stats{Frames: n}
	if n < 2 {
		return st
	}
	st.Duration = times[n-1].Sub(times[0])
	if st.Duration <= 0 {
		return st
	}
	st.Mean = float64(n-1) / st.Duration.Seconds()

	rates := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if iv := times[i].Sub(times[i-1]).Seconds(); iv > 0 {
			rates = append(rates, 1/iv)
		}
	}
	if len(rates) == 0 {
		return st
	}

	st.Min, st.Max = rates[0], rates[0]
	var sq float64
	for _, r := range rates {
		st.Min = math.Min(st.Min, r)
		st.Max = math.Max(st.Max, r)
		d := r - st.Mean
		sq += d * d
	}
	st.StdDev = math.Sqrt(sq / float64(len(rates)))

	expected := 1 / st.Mean
	var jitterSum, jitterMax float64
	for i := 1; i < n; i++ {
		j := math.Abs(times[i].Sub(times[i-1]).Seconds() - expected)
		jitterSum += j
		jitterMax = math.Max(jitterMax, j)
	}
	jitterMean := jitterSum / float64(n-1)
	st.JitterMean = time.Duration(jitterMean * float64(time.Second))
	st.JitterMax = time.Duration(jitterMax * float64(time.Second))

	st.Stable = st.StdDev < st.Mean*rateStabilityThreshold &&
		jitterMean < expected*jitterStabilityThreshold
	return st
}

// Meter records frame arrivals in a fixed-size ring
type Meter struct {
	now func() time.Time

	mu    sync.Mutex
	ring  []time.Time
	next  int
	full  bool
	total uint64
}

// NewMeter returns a meter over the last window arrivals
// (DefaultWindow when window < 2)
func NewMeter(window int) *Meter {
	if window < 2 {
		window = DefaultWindow
	}
	return &Meter{now: time.Now, ring: make([]time.Time, window)}
}

// Observe records one arrival now
func (m *Meter) Observe() {
	m.mu.Lock()
	m.record(m.now())
	m.mu.Unlock()
}

// ObserveAt records one arrival at t. Arrivals must be monotonic.
func (m *Meter) ObserveAt(t time.Time) {
	m.mu.Lock()
	m.record(t)
	m.mu.Unlock()
}

func (m *Meter) record(t time.Time) {
	m.ring[m.next] = t
	m.next++
	if m.next == len(m.ring) {
		m.next = 0
		m.full = true
	}
	m.total++
}

// Total returns the number of arrivals ever observed
func (m *Meter) Total() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Reset forgets the window. Total is kept.
func (m *Meter) Reset() {
	m.mu.Lock()
	m.next = 0
	m.full = false
	m.mu.Unlock()
}

// Stats computes statistics over the current window
func (m *Meter) Stats() Stats {
	m.mu.Lock()
	var times []time.Time
	if m.full {
		times = make([]time.Time, 0, len(m.ring))
		times = append(times, m.ring[m.next:]...)
		times = append(times, m.ring[:m.next]...)
	} else {
		times = append([]time.Time(nil), m.ring[:m.next]...)
	}
	m.mu.Unlock()
	return Compute(times)
}
