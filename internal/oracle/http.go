package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/yield-hedge/internal/yield"
)

// HTTPClient queries a remote yield service:
//
//	GET {base}/v1/yield?crop=corn&region=RegionX&season_end=2000
//	200 {"yield":"4.50"}
//
// Any transport error, non-200 status, or undecodable body is a failure.
// There is no retry.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a client for baseURL with a per-request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type yieldResponse struct {
	Yield *decimal.Decimal `json:"yield"`
}

func (c *HTTPClient) GetYield(ctx context.Context, cropType, region string, seasonEnd int64) (int64, error) {
	q := url.Values{}
	q.Set("crop", cropType)
	q.Set("region", region)
	q.Set("season_end", strconv.FormatInt(seasonEnd, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/yield?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("oracle: request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, fmt.Errorf("%w: %s/%s@%d", ErrNoData, cropType, region, seasonEnd)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var yr yieldResponse
	if err := json.NewDecoder(resp.Body).Decode(&yr); err != nil {
		return 0, fmt.Errorf("oracle: decode: %w", err)
	}
	if yr.Yield == nil {
		return 0, fmt.Errorf("%w: empty response", ErrNoData)
	}
	v, err := yield.ToFixed(*yr.Yield)
	if err != nil {
		return 0, fmt.Errorf("oracle: %w", err)
	}
	return v, nil
}
