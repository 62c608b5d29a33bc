// Package palette assigns display colors to category names.
package palette

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var defaults = map[string]string{
	"work/coding":           "#3b82f6",
	"work/communication":    "#06b6d4",
	"work/documentation":    "#8b5cf6",
	"work/devops":           "#6366f1",
	"entertainment/video":   "#ef4444",
	"entertainment/social":  "#f97316",
	"entertainment/music":   "#ec4899",
	"productivity/reading":  "#10b981",
	"productivity/finance":  "#14b8a6",
	"uncategorized":         "#9ca3af",
	"inappropriate-content": "#78716c",
}

var fallback = []string{
	"#0ea5e9", "#a855f7", "#f59e0b", "#22c55e", "#e11d48",
	"#64748b", "#84cc16", "#d946ef", "#0891b2", "#dc2626",
}

// Lookup resolves category names to hex colors. It is immutable once built
// and safe for concurrent use.
type Lookup struct {
	colors map[string]string
	keys   []string
}

// New returns a Lookup over the built-in colors. Entries in overrides replace
// or extend them.
func New(overrides map[string]string) *Lookup {
	colors := make(map[string]string, len(defaults)+len(overrides))
	for name, c := range defaults {
		colors[name] = c
	}
	for name, c := range overrides {
		if name != "" && c != "" {
			colors[name] = c
		}
	}
	keys := make([]string, 0, len(colors))
	for name := range colors {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return &Lookup{colors: colors, keys: keys}
}

// Color returns the color for name. Known names map directly. A name that is
// the parent of a known name, or shares a top-level segment with one, takes the
// first such color in key order. Anything else gets a stable fallback color.
func (l *Lookup) Color(name string) string {
	if c, ok := l.colors[name]; ok {
		return c
	}
	if name != "" {
		for _, key := range l.keys {
			root, _, _ := strings.Cut(key, "/")
			if strings.HasPrefix(key, name+"/") || strings.HasPrefix(name, root+"/") {
				return l.colors[key]
			}
		}
	}
	return fallback[xxhash.Sum64String(name)%uint64(len(fallback))]
}

// ScoreColor maps a 0-100 productivity score to green, amber or red.
func ScoreColor(score int) string {
	switch {
	case score >= 70:
		return "#10b981"
	case score >= 50:
		return "#f59e0b"
	default:
		return "#ef4444"
	}
}
