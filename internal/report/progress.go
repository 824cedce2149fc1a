package report

import (
	"strconv"
	"strings"
)

const defaultBarWidth = 20

// TextProgressBar renders percent as a text bar like [█████░░░░░].
// percent is clamped to [0, 100]; a non-positive width falls back to 20.
func TextProgressBar(percent, width int) string {
	if width <= 0 {
		width = defaultBarWidth
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := width * percent / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// WeightedProgress computes pipeline progress: each guideline document counts
// once, each asset counts twice (assets take two grading passes). Returns a
// percentage in [0, 100]; an empty plan reports 100.
func WeightedProgress(totalGuidelines, doneGuidelines, totalAssets, doneAssets int) int {
	total := totalGuidelines + 2*totalAssets
	if total <= 0 {
		return 100
	}
	done := doneGuidelines + 2*doneAssets
	percent := done * 100 / total
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent
}

// DecorateWithProgress appends a progress bar to streamed agent text so the
// user sees how far the evaluation plan has advanced.
func DecorateWithProgress(text string, percent int) string {
	if text == "" {
		return text
	}
	return text + "\n\n" + TextProgressBar(percent, 10) + " " + strconv.Itoa(percent) + "%"
}
