package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var progressLine = regexp.MustCompile(`\[download\]\s+([0-9.]+)%`)

// ParseProgress extracts the percentage from a yt-dlp download line. Values
// close to the end are snapped to 100 because the final merge rewrites the
// counter; everything is clamped to [0,100].
func ParseProgress(line string) (int, bool) {
	m := progressLine.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if value >= 99.5 {
		return 100, true
	}
	if value < 0 {
		return 0, true
	}
	if value > 100 {
		return 100, true
	}
	return int(value + 0.5), true
}

// IsExtractAudioLine reports whether the tool switched to its audio
// extraction phase.
func IsExtractAudioLine(line string) bool {
	return strings.Contains(strings.ToLower(line), "[extractaudio]")
}
