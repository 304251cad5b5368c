package catalog

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Chapter is one segment of a longer video.
type Chapter struct {
	Label  string
	Offset int
	Length int
}

var reTimestamp = regexp.MustCompile(`(?:\d+:)+\d+`)

const labelSeparators = " \t-:–—|>"


// ParseChapters reads "0:00 Intro" style markers out of a video description.
// A list only counts when its first marker is at zero. Lines with more than
// one timestamp are ignored.
func ParseChapters(description string, durationSec int) []Chapter {
	type mark struct {
		label  string
		offset int
	}
	var marks []mark
	started := false

	for _, line := range strings.Split(description, "\n") {
		stamps := reTimestamp.FindAllString(line, -1)
		if len(stamps) != 1 {
			continue
		}
		ts := stamps[0]
		secs := parseTimestamp(ts)
		if !started {
			if secs != 0 {
				continue
			}
			started = true
		}
		before, after, _ := strings.Cut(line, ts)
		label := strings.TrimSpace(strings.TrimLeft(after, labelSeparators+"])"))
		if label == "" {
			label = strings.TrimSpace(strings.TrimRight(before, labelSeparators+"[("))
		}
		if label == "" {
			label = "Chapter"
		}
		marks = append(marks, mark{label: label, offset: secs})
	}
	if len(marks) == 0 {
		return nil
	}

	slices.SortStableFunc(marks, func(a, b mark) int { return a.offset - b.offset })

	var out []Chapter
	for i, m := range marks {
		end := durationSec
		if i+1 < len(marks) {
			end = marks[i+1].offset
		}
		if end > m.offset {
			out = append(out, Chapter{Label: m.label, Offset: m.offset, Length: end - m.offset})
		}
	}
	return out
}

func parseTimestamp(s string) int {
	total := 0
	for _, p := range strings.Split(s, ":") {
		n, _ := strconv.Atoi(p)
		total = total*60 + n
	}
	return total
}
