package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"FinChart/internal/domain/models"
	domrepo "FinChart/internal/domain/repository"
	xhttp "FinChart/pkg/http"
)

// HTTPTickSource pulls raw price points from an upstream quote service:
//
//	GET {base}/ticks?symbol=AAPL&range=1d&minutes=5  ->  {"points": [...]}
type HTTPTickSource struct {
	base   string
	client *xhttp.Client
}

func NewHTTPTickSource(baseURL string, client *xhttp.Client) *HTTPTickSource {
	if client == nil {
		client = xhttp.NewClient()
	}
	return &HTTPTickSource{base: strings.TrimRight(baseURL, "/"), client: client}
}

type ticksResponse struct {
	Points []models.RawPricePoint `json:"points"`
}

func (s *HTTPTickSource) Ticks(ctx context.Context, symbol string, g models.Granularity) ([]models.RawPricePoint, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	q := map[string][]string{
		"symbol": {symbol},
		"range":  {string(g.Range)},
	}
	if g.Minutes > 0 {
		q["minutes"] = []string{strconv.Itoa(g.Minutes)}
	}

	var resp ticksResponse
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         s.base + "/ticks",
		Headers:     map[string]string{"Accept": "application/json"},
		QueryParams: q,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch ticks %s %s: %w", symbol, g, err)
	}
	return resp.Points, nil
}

var _ domrepo.TickSource = (*HTTPTickSource)(nil)
