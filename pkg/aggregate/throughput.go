package aggregate

import (
	"time"

	"github.com/computechain/explorer/pkg/db/models"
)

// ThroughputStats is a rolling view of chain throughput over a trailing
// time window. Rates are display values; a window with no blocks yields
// all zeros rather than a division failure.
type ThroughputStats struct {
	CurrentTPS   float64 `json:"current_tps"`
	AvgTPS       float64 `json:"avg_tps"`
	AvgBlockTime float64 `json:"avg_block_time_seconds"`
	Blocks       int     `json:"blocks_in_window"`
	Txs          int     `json:"txs_in_window"`
}

// currentSpan is the trailing slice of the window used for the instantaneous
// TPS figure.
const currentSpan = time.Minute

// Throughput computes rolling stats from recent blocks. Only blocks whose
// timestamp falls within [now-window, now] count, so sparse production does
// not inflate the apparent rate. The input may be in any order.
func Throughput(recent []*models.Block, window time.Duration, now time.Time) ThroughputStats {
	var stats ThroughputStats
	if window <= 0 {
		return stats
	}

	cutoff := now.Add(-window)
	currentCutoff := now.Add(-currentSpan)

	var oldest, newest time.Time
	var currentTxs int
	for _, b := range recent {
		if b.Time.Before(cutoff) || b.Time.After(now) {
			continue
		}
		stats.Blocks++
		stats.Txs += b.NumTxs
		if !b.Time.Before(currentCutoff) {
			currentTxs += b.NumTxs
		}
		if oldest.IsZero() || b.Time.Before(oldest) {
			oldest = b.Time
		}
		if b.Time.After(newest) {
			newest = b.Time
		}
	}

	if stats.Blocks == 0 {
		return stats
	}

	stats.AvgTPS = float64(stats.Txs) / window.Seconds()
	stats.CurrentTPS = float64(currentTxs) / currentSpan.Seconds()
	if stats.Blocks > 1 {
		span := newest.Sub(oldest).Seconds()
		stats.AvgBlockTime = span / float64(stats.Blocks-1)
	}
	return stats
}
