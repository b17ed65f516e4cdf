package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Geocoder resolves coordinates into an address label over the HERE style
// reverse geocoding REST API. GETs are idempotent, so they are retried.
type Geocoder struct {
	endpoint string
	apiKey   string
	http     *retryablehttp.Client
}

func NewGeocoder(endpoint, apiKey string, logger *zap.Logger) *Geocoder {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	if logger != nil {
		hc.Logger = leveledZap{logger.Sugar()}
	} else {
		hc.Logger = nil
	}
	return &Geocoder{endpoint: endpoint, apiKey: apiKey, http: hc}
}

type geocodeResponse struct {
	Items []struct {
		Address struct {
			Label string `json:"label"`
		} `json:"address"`
	} `json:"items"`
}

// Reverse returns the label of the first match, or "" when nothing matched.
func (g *Geocoder) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("at", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("lang", "en-US")
	q.Set("apiKey", g.apiKey)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode: status %d", resp.StatusCode)
	}

	var out geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode reverse geocode: %w", err)
	}
	if len(out.Items) == 0 {
		return "", nil
	}
	return out.Items[0].Address.Label, nil
}

// leveledZap adapts a zap sugared logger to retryablehttp.LeveledLogger.
type leveledZap struct {
	s *zap.SugaredLogger
}

func (l leveledZap) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledZap) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveledZap) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledZap) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
