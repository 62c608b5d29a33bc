package domain

import (
	"fmt"
	"math"
)

// FormatDuration renders seconds as "{h}h {m}m" or "{m}m".
// Minutes are rounded before the hour split so m stays in [0, 59]:
// 3599s renders as "1h 0m", not "0h 60m".
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	minutes := int64(math.Round(seconds / 60))
	h, m := minutes/60, minutes%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// Percent is part/total*100 rounded to one decimal, 0 when total is 0.
func Percent(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(part/total*1000) / 10
}

// ProductivityScore maps a weighted average in [-2, 2] onto [0, 100].
func ProductivityScore(weightedSum, seconds float64) int {
	avg := 0.0
	if seconds > 0 {
		avg = weightedSum / seconds
	}
	return clampScore(math.Round((avg + 2) / 4 * 100))
}

func clampScore(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v)
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
