package flow

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spaolacci/murmur3"
)

const (
	DefaultFetchTimeout  = 30 * time.Second
	DefaultFetchCacheTTL = time.Hour
)

// Fetcher downloads JSON input for flows. Responses are cached by source url and token.
type Fetcher struct {
	client *http.Client
	cache  *cache.Cache
}

func NewFetcher(timeout time.Duration, cacheTTL time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultFetchCacheTTL
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		cache:  cache.New(cacheTTL, cacheTTL),
	}
}

func (f *Fetcher) Fetch(ctx context.Context, sourceUrl string, authToken string) (json.RawMessage, error) {
	key := inputHash(sourceUrl, authToken)
	if cached, ok := f.cache.Get(key); ok {
		log.Debugf("Using cached response for %s", sourceUrl)
		return cached.(json.RawMessage), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceUrl, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", sourceUrl)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("fetching %s: unexpected status %s", sourceUrl, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading response from %s", sourceUrl)
	}
	if !json.Valid(body) {
		return nil, errors.Errorf("response from %s is not valid JSON", sourceUrl)
	}

	f.cache.SetDefault(key, json.RawMessage(body))
	return body, nil
}

func inputHash(parts ...string) string {
	h := murmur3.New128()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
