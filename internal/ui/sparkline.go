package ui

import "strings"

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// history keeps the most recent throughput samples for the HUD graph.
type history struct {
	samples []float64
	size    int
}

func newHistory(size int) *history {
	return &history{size: size}
}

func (h *history) push(v float64) {
	h.samples = append(h.samples, v)
	if len(h.samples) > h.size {
		h.samples = h.samples[len(h.samples)-h.size:]
	}
}

// render draws the samples as exactly size block runes, oldest on the left
// and right-aligned. Heights are relative to the largest sample; any
// non-zero sample is at least one step above the floor.
func (h *history) render() string {
	if h.size <= 0 {
		return ""
	}
	peak := 0.0
	for _, v := range h.samples {
		peak = max(peak, v)
	}

	var b strings.Builder
	for range h.size - len(h.samples) {
		b.WriteRune(sparkBlocks[0])
	}
	top := len(sparkBlocks) - 1
	for _, v := range h.samples {
		if v <= 0 || peak <= 0 {
			b.WriteRune(sparkBlocks[0])
			continue
		}
		idx := min(max(int(v/peak*float64(top)+0.5), 1), top)
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}
