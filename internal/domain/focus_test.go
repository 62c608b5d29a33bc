package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func focusEvent(start time.Time, offset time.Duration, app, category string, score int, secs float64) EventView {
	return EventView{
		Event:             Event{Timestamp: start.Add(offset), App: &app, Duration: secs},
		Category:          category,
		ProductivityScore: score,
	}
}

func TestAnalyzeFocusBlocksAndSwitches(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	events := []EventView{
		focusEvent(start, 0, "vscode", "work/coding", 2, 300),
		focusEvent(start, 5*time.Minute, "Terminal", "work/coding", 2, 300),
		focusEvent(start, 10*time.Minute, "YouTube", "entertainment/video", -1, 600),
		focusEvent(start, 20*time.Minute, "vscode", "work/coding", 2, 120),
		// Gap longer than 65s breaks the block.
		focusEvent(start, 25*time.Minute, "vscode", "work/coding", 2, 120),
		{Event: Event{Timestamp: start.Add(30 * time.Minute), Duration: 900, IsAFK: true}},
	}

	report := AnalyzeFocus(events)
	require.Equal(t, 1440.0, report.TotalActiveSeconds)
	require.Equal(t, 2, report.ContextSwitches)
	require.Equal(t, 5.0, report.SwitchesPerHour)

	require.Len(t, report.DeepWorkBlocks, 1)
	block := report.DeepWorkBlocks[0]
	require.Equal(t, 600.0, block.DurationSeconds)
	require.Equal(t, []string{"vscode", "Terminal"}, block.Apps)
	require.Equal(t, start, block.Start)
	require.Equal(t, start.Add(5*time.Minute), block.End)
	require.Equal(t, 10.0, report.LongestFocusMinutes)

	require.Len(t, report.TopDistractions, 1)
	require.Equal(t, Distraction{App: "YouTube", SwitchesTo: 1, TotalSeconds: 600}, report.TopDistractions[0])

	// ratio 600/1440, penalty 5/30
	require.Equal(t, 54, report.FocusScore)
}

func TestAnalyzeFocusEmpty(t *testing.T) {
	report := AnalyzeFocus(nil)
	require.Zero(t, report.FocusScore)
	require.Empty(t, report.DeepWorkBlocks)
	require.Empty(t, report.TopDistractions)
}
