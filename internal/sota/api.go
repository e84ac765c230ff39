package sota

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

const fetchTimeout = 15 * time.Second

// Client fetches the SOTA spots feed.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch returns the current feed contents. Items that fail to parse are
// dropped and logged rather than failing the whole response.
func (c *Client) Fetch(ctx context.Context) ([]FeedSpot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sota api returned status %d", resp.StatusCode)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode sota response: %w", err)
	}

	spots := make([]FeedSpot, 0, len(raw))
	for _, item := range raw {
		var sp FeedSpot
		if err := json.Unmarshal(item, &sp); err != nil {
			log.Printf("sota api: dropping unparsable feed item: %v", err)
			continue
		}
		spots = append(spots, sp)
	}
	return spots, nil
}
