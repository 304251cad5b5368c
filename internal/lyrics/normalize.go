package lyrics

import (
	"regexp"
	"strings"
)

var (
	reNoiseBracket = regexp.MustCompile(`(?i)[\(\[][^\)\]]*(official|lyric|audio|video|visualizer|hd|4k|1080p|720p|remaster)[^\)\]]*[\)\]]`)
	reNoiseToken   = regexp.MustCompile(`(?i)\b(official\s+(music\s+)?(video|audio)|lyrics?|mv|hd|hq|4k)\b`)
	reFeat         = regexp.MustCompile(`(?i)\bft\.`)
	reEmptyBracket = regexp.MustCompile(`[\(\[]\s*[\)\]]`)
	reSpaces       = regexp.MustCompile(`\s+`)
)

// NormalizeTitle strips promotional noise from a track title so providers
// see something close to the real song name.
func NormalizeTitle(title string) string {
	s := reNoiseBracket.ReplaceAllString(title, "")
	s = reNoiseToken.ReplaceAllString(s, "")
	s = reFeat.ReplaceAllString(s, "feat.")
	s = reEmptyBracket.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.Trim(s, " -|")
}

func cacheKey(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, ":")
}
