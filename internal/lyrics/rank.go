package lyrics

import (
	"regexp"
	"sort"
	"strings"
)

var nonSongMarkers = []*regexp.Regexp{
	regexp.MustCompile(`\balbum\b`),
	regexp.MustCompile(`\brelease\b`),
	regexp.MustCompile(`\btracklist\b`),
	regexp.MustCompile(`\bcalendar\b`),
	regexp.MustCompile(`\brelease dates?\b`),
	regexp.MustCompile(`\bannounc`),
	regexp.MustCompile(`\bnews\b`),
	regexp.MustCompile(`\barticle\b`),
	regexp.MustCompile(`\binterview\b`),
	regexp.MustCompile(`\bcredits\b`),
}

var nonSongPaths = []string{"/albums/", "/releases/", "/artists/"}

const maxCandidates = 8

type candidate struct {
	url    string
	title  string
	artist string
	typ    string
	index  int
	score  int
}

func looksLikeNonSong(u, title string) bool {
	u = strings.ToLower(u)
	title = strings.ToLower(title)
	for _, re := range nonSongMarkers {
		if re.MatchString(u) || re.MatchString(title) {
			return true
		}
	}
	for _, p := range nonSongPaths {
		if strings.Contains(u, p) {
			return true
		}
	}
	return false
}

func scoreCandidate(c candidate, artist, title string) int {
	s := 0
	if strings.Contains(strings.ToLower(c.url), "-lyrics") {
		s += 100
	}
	if c.typ == "song" {
		s += 20
	}
	if artist != "" && c.artist != "" && strings.Contains(strings.ToLower(c.artist), artist) {
		s += 50
	}
	if title != "" && strings.Contains(strings.ToLower(c.title), title) {
		s += 30
	}
	s += max(0, 5-c.index)
	return s
}

// rankHits drops non-song results and orders the rest best first. Hits
// that tie keep the provider's order.
func rankHits(hits []geniusHit, artist, title string) []candidate {
	artist = strings.ToLower(strings.TrimSpace(artist))
	title = strings.ToLower(strings.TrimSpace(title))

	out := make([]candidate, 0, len(hits))
	for i, h := range hits {
		if h.Result.URL == "" || looksLikeNonSong(h.Result.URL, h.Result.Title) {
			continue
		}
		c := candidate{
			url:    h.Result.URL,
			title:  h.Result.Title,
			artist: h.Result.PrimaryArtist.Name,
			typ:    h.Type,
			index:  i,
		}
		c.score = scoreCandidate(c, artist, title)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}
