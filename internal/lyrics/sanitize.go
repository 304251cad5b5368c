package lyrics

import (
	"regexp"
	"strings"
)

var (
	reContributors = regexp.MustCompile(`(?i)^\d+\s+Contributors`)
	reBlankRuns    = regexp.MustCompile(`\n{3,}`)
	reSectionTag   = regexp.MustCompile(`^\[.+\]$`)
	reMonth        = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\b`)
	reLeadingDay   = regexp.MustCompile(`^\d{1,2}\b`)
)

var boilerplatePrefixes = []string{"read more", "see more", "visit"}

// sanitize removes page furniture that leaks into scraped lyrics.
// Blank lines survive so stanzas stay apart.
func sanitize(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln != "" && isJunkLine(ln) {
			continue
		}
		kept = append(kept, ln)
	}
	out := reBlankRuns.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")
	return strings.TrimSpace(out)
}

func isJunkLine(ln string) bool {
	if reContributors.MatchString(ln) {
		return true
	}
	lower := strings.ToLower(ln)
	for _, p := range boilerplatePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return len(ln) > 200 && strings.Count(ln, ".") > 2
}

// likelyLyrics reports whether text reads like song lyrics rather than an
// article, tracklist or release calendar.
func likelyLyrics(text string) bool {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) == 0 {
		return false
	}

	longParas, shortLines, dated := 0, 0, 0
	for _, ln := range lines {
		switch n := len(ln); {
		case n > 180:
			longParas++
		case n <= 80:
			shortLines++
		}
		if reMonth.MatchString(ln) {
			dated++
		}
		if reLeadingDay.MatchString(ln) {
			dated++
		}
	}
	if longParas >= 3 && shortLines < 5 {
		return false
	}
	if dated > 5 {
		return false
	}

	head := lines[:min(20, len(lines))]
	short := 0
	for _, ln := range head {
		if reSectionTag.MatchString(ln) {
			return true
		}
		if len(ln) < 120 {
			short++
		}
	}
	return short*2 >= len(head)
}
