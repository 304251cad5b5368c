package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sonroyaalmerol/tansen/internal/utils"
	"golang.org/x/net/html"
)

const defaultGeniusBase = "https://api.genius.com"

var errNoToken = errors.New("genius: no api token")

type geniusHit struct {
	Type   string `json:"type"`
	Result struct {
		URL           string `json:"url"`
		Title         string `json:"title"`
		PrimaryArtist struct {
			Name string `json:"name"`
		} `json:"primary_artist"`
	} `json:"result"`
}

type geniusClient struct {
	http  *http.Client
	base  string
	token string
}

func newGeniusClient(base, token string) *geniusClient {
	if base == "" {
		base = defaultGeniusBase
	}
	return &geniusClient{
		http:  &http.Client{Timeout: 10 * time.Second},
		base:  strings.TrimRight(base, "/"),
		token: token,
	}
}

func (c *geniusClient) search(ctx context.Context, query string) ([]geniusHit, error) {
	if c.token == "" {
		return nil, errNoToken
	}
	u := c.base + "/search?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("genius search: status %d", resp.StatusCode)
	}
	var body struct {
		Response struct {
			Hits []geniusHit `json:"hits"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Response.Hits, nil
}

func (c *geniusClient) page(ctx context.Context, pageURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("genius page: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// extractLyrics pulls the lyric block out of a Genius song page. Newer
// pages split lyrics across several data-lyrics-container divs; older ones
// use a single div.lyrics.
func extractLyrics(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	var parts []string
	doc.Find(`div[data-lyrics-container="true"]`).Each(func(_ int, s *goquery.Selection) {
		if txt := containerText(s); txt != "" {
			parts = append(parts, txt)
		}
	})
	if len(parts) > 0 {
		return strings.Join(parts, "\n\n"), nil
	}

	if txt := containerText(doc.Find("div.lyrics").First()); txt != "" {
		return txt, nil
	}
	return "", nil
}

func containerText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		walkText(&b, n)
	}
	lines := strings.Split(b.String(), "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimSpace(ln)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func walkText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "br" {
			b.WriteByte('\n')
			return
		}
		for _, a := range n.Attr {
			if a.Key == "data-exclude-from-selection" && a.Val == "true" {
				return
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(b, c)
	}
}
