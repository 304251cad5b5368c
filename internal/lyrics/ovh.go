package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultOVHBase = "https://api.lyrics.ovh/v1"

type ovhClient struct {
	http *http.Client
	base string
}

func newOVHClient(base string) *ovhClient {
	if base == "" {
		base = defaultOVHBase
	}
	return &ovhClient{http: &http.Client{Timeout: 8 * time.Second}, base: strings.TrimRight(base, "/")}
}

func (c *ovhClient) fetch(ctx context.Context, artist, title string) (string, error) {
	if artist == "" || title == "" {
		return "", nil
	}
	u := fmt.Sprintf("%s/%s/%s", c.base, url.PathEscape(artist), url.PathEscape(title))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lyrics.ovh: status %d", resp.StatusCode)
	}
	var body struct {
		Lyrics string `json:"lyrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return strings.TrimSpace(body.Lyrics), nil
}
