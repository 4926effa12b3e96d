package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/pkg/errors"
)

// DefaultFrankfurterEndpoint is the public Frankfurter API.
const DefaultFrankfurterEndpoint = "https://api.frankfurter.app"

// FrankfurterProvider fetches ECB reference rates from a Frankfurter API.
type FrankfurterProvider struct {
	endpoint string
	client   *http.Client
}

// NewFrankfurterProvider creates a provider for endpoint. An empty endpoint
// uses DefaultFrankfurterEndpoint.
func NewFrankfurterProvider(endpoint string, timeout time.Duration) *FrankfurterProvider {
	if endpoint == "" {
		endpoint = DefaultFrankfurterEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FrankfurterProvider{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

// Rate implements Provider.
func (p *FrankfurterProvider) Rate(ctx context.Context, date time.Time, from, to string) (Quote, error) {
	return p.get(ctx, date.Format(models.DateLayout), from, to)
}

// Latest implements Provider.
func (p *FrankfurterProvider) Latest(ctx context.Context, from, to string) (Quote, error) {
	return p.get(ctx, "latest", from, to)
}

type frankfurterResponse struct {
	Amount float64            `json:"amount"`
	Base   string             `json:"base"`
	Date   string             `json:"date"`
	Rates  map[string]float64 `json:"rates"`
}

func (p *FrankfurterProvider) get(ctx context.Context, path, from, to string) (Quote, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	endpoint := p.endpoint + "/" + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, errors.NetworkError(errors.CodeConnectionFailed, endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Quote{}, errors.NetworkError(errors.CodeTimeout, endpoint, err)
		}
		return Quote{}, errors.NetworkError(errors.CodeConnectionFailed, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Quote{}, errors.NetworkError(errors.CodeServiceUnavailable, endpoint,
			fmt.Errorf("status %d", resp.StatusCode)).WithContext("status", resp.StatusCode)
	}

	var body frankfurterResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Quote{}, errors.NetworkError(errors.CodeServiceUnavailable, endpoint, err)
	}

	rate, ok := body.Rates[to]
	if !ok || rate <= 0 {
		return Quote{}, errors.NetworkError(errors.CodeServiceUnavailable, endpoint,
			fmt.Errorf("no positive %s rate in response", to))
	}

	effective, err := models.ParseDate(body.Date)
	if err != nil {
		return Quote{}, errors.NetworkError(errors.CodeServiceUnavailable, endpoint, err)
	}

	return Quote{Date: effective, Rate: rate}, nil
}
