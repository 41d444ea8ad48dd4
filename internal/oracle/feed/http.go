package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/capgrid/rentd/internal/observability/tracing"
	oracledomain "github.com/capgrid/rentd/internal/oracle/domain"
)

// HTTPFeed reads a Chainlink-style aggregator exposed over HTTP. The
// endpoint returns the latest round as JSON.
type HTTPFeed struct {
	url    string
	client *http.Client
}

type roundResponse struct {
	RoundID   uint64 `json:"round_id"`
	Answer    string `json:"answer"`
	StartedAt int64  `json:"started_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func NewHTTPFeed(url string) *HTTPFeed {
	return &HTTPFeed{
		url:    url,
		client: tracing.WrapHTTPClient(&http.Client{Timeout: 5 * time.Second}),
	}
}

func (f *HTTPFeed) LatestRound(ctx context.Context) (oracledomain.Round, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return oracledomain.Round{}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return oracledomain.Round{}, fmt.Errorf("feed read: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return oracledomain.Round{}, fmt.Errorf("feed read: status %d", resp.StatusCode)
	}

	var payload roundResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return oracledomain.Round{}, fmt.Errorf("feed decode: %w", err)
	}

	answer, ok := new(big.Int).SetString(payload.Answer, 10)
	if !ok {
		return oracledomain.Round{}, fmt.Errorf("feed decode: bad answer %q", payload.Answer)
	}

	return oracledomain.Round{
		RoundID:   payload.RoundID,
		Answer:    answer,
		StartedAt: time.Unix(payload.StartedAt, 0).UTC(),
		UpdatedAt: time.Unix(payload.UpdatedAt, 0).UTC(),
	}, nil
}

// StaticFeed answers every read with a fixed value. It stands in for the
// real feeds in development environments.
type StaticFeed struct {
	Value *big.Int
}

func (f StaticFeed) LatestRound(context.Context) (oracledomain.Round, error) {
	now := time.Now().UTC()
	return oracledomain.Round{
		RoundID:   1,
		Answer:    new(big.Int).Set(f.Value),
		StartedAt: now.Add(-24 * time.Hour),
		UpdatedAt: now,
	}, nil
}
