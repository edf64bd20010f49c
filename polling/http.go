package polling

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"meshmon/config"
)

// httpClient is shared by all HTTP sources.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// NewHTTPSource polls a URL and reports the body as a single item whose
// id is the body digest, so any content change is announced once.
func NewHTTPSource(cfg config.SourceConfig) *Source {
	return &Source{
		Cfg: cfg,
		Fetcher: FetchFunc(func(ctx context.Context) ([]Item, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
			if err != nil {
				return nil, err
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("fetch %s: status %d", cfg.URL, resp.StatusCode)
			}
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return nil, err
			}
			sum := sha256.Sum256(body)
			return []Item{{
				ID:    hex.EncodeToString(sum[:8]),
				Title: cfg.Name,
				Body:  string(body),
			}}, nil
		}),
	}
}
