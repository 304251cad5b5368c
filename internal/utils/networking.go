package utils

import (
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
)

// RandomUserAgent returns a desktop Chrome user agent from a recent major
// version.
func RandomUserAgent() string {
	const minMajor, maxMajor = 132, 138
	major := rand.IntN(maxMajor-minMajor+1) + minMajor
	return fmt.Sprintf(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		major,
	)
}

// StreamHeaders renders request headers for libavformat's "headers" option:
// "Key: Value\r\n" lines in a stable order. Browser-like defaults fill in
// whatever extra leaves out.
func StreamHeaders(extra map[string]string) string {
	h := map[string]string{
		"User-Agent":      RandomUserAgent(),
		"Accept":          "*/*",
		"Accept-Language": "en-US,en;q=0.9",
	}
	maps.Copy(h, extra)

	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(h)) {
		v := strings.TrimSpace(h[k])
		if v == "" {
			continue
		}
		b.WriteString(k + ": " + v + "\r\n")
	}
	return b.String()
}
