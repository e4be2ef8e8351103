package aggregator

import (
	"time"

	"github.com/agentlens/backend/internal/event"
)

const (
	burnRateWindow  = 60 * time.Second
	burnSampleEvery = 10 * time.Second
	maxBurnPoints   = 120
	maxBurnHistory  = 60
)

// burnPoint stores a cumulative token count at a point in time.
type burnPoint struct {
	Tokens    int       `json:"tokens"`
	Timestamp time.Time `json:"timestamp"`
}

// burnSampler derives a tokens-per-minute series from the cumulative token
// total, sampled on a fixed interval over a sliding window.
type burnSampler struct {
	points     []burnPoint
	history    []BurnSample
	total      int
	lastSample time.Time
}

func newBurnSampler() *burnSampler {
	return &burnSampler{}
}

func (b *burnSampler) observe(ev *event.Event) {
	if ev.Usage == nil {
		return
	}
	delta := ev.Usage.InputTokens + ev.Usage.OutputTokens
	if delta <= 0 {
		return
	}
	b.total += delta
	b.addPoint(ev.Timestamp)
}

func (b *burnSampler) addPoint(now time.Time) {
	b.points = append(b.points, burnPoint{Tokens: b.total, Timestamp: now})
	b.trim(now)

	if b.lastSample.IsZero() || now.Sub(b.lastSample) >= burnSampleEvery {
		b.lastSample = now
		b.history = append(b.history, BurnSample{
			Timestamp:       now,
			TokensPerMinute: b.rate(),
		})
		if len(b.history) > maxBurnHistory {
			b.history = append([]BurnSample(nil), b.history[len(b.history)-maxBurnHistory:]...)
		}
	}
}

func (b *burnSampler) trim(now time.Time) {
	cutoff := now.Add(-burnRateWindow)
	startIdx := 0
	for i, p := range b.points {
		if p.Timestamp.After(cutoff) {
			startIdx = i
			break
		}
		startIdx = i + 1
	}
	if startIdx > 0 && startIdx < len(b.points) {
		b.points = b.points[startIdx:]
	} else if startIdx >= len(b.points) {
		b.points = b.points[:0]
	}

	// Hard cap in case time-based trimming is insufficient.
	if len(b.points) > maxBurnPoints {
		b.points = append([]burnPoint(nil), b.points[len(b.points)-maxBurnPoints:]...)
	}
}

// rate returns the current tokens-per-minute over the window. Needs at
// least two points spanning five seconds to avoid noisy rates.
func (b *burnSampler) rate() float64 {
	if len(b.points) < 2 {
		return 0
	}
	oldest := b.points[0]
	latest := b.points[len(b.points)-1]

	tokenDelta := latest.Tokens - oldest.Tokens
	timeDelta := latest.Timestamp.Sub(oldest.Timestamp)
	if timeDelta.Seconds() < 5 {
		return 0
	}
	minutes := timeDelta.Minutes()
	if minutes > 0 && tokenDelta > 0 {
		return float64(tokenDelta) / minutes
	}
	return 0
}

func (b *burnSampler) snapshot() (float64, []BurnSample) {
	return b.rate(), append([]BurnSample(nil), b.history...)
}

func (b *burnSampler) reset() {
	b.points = nil
	b.history = nil
	b.total = 0
	b.lastSample = time.Time{}
}
