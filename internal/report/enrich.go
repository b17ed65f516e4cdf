package report

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"fleet-dashboard/internal/backend"
)

const enrichWorkers = 8

// addressFields pairs an address column with its coordinate columns.
var addressFields = []struct {
	address, lat, lon string
}{
	{"address", "lat", "lon"},
	{"next_address", "next_lat", "next_lon"},
}

// Enrich fills empty address columns of entries from the backend address
// cache, falling back to the geocoder. A failing entry is logged and left
// as it was; it never fails the batch.
func (s *Service) Enrich(ctx context.Context, ts backend.TokenSource, entries []Entry) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichWorkers)

	for i := range entries {
		entry := entries[i]
		idx := i
		g.Go(func() error {
			for _, f := range addressFields {
				if err := s.fillAddress(gctx, ts, entry, f.address, f.lat, f.lon); err != nil {
					s.logger.Warn("address enrichment failed",
						zap.Int("entry", idx),
						zap.String("field", f.address),
						zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) fillAddress(ctx context.Context, ts backend.TokenSource, entry Entry, field, latKey, lonKey string) error {
	if !isEmptyAddress(entry[field]) {
		return nil
	}
	lat, ok := number(entry[latKey])
	if !ok {
		return nil
	}
	lon, ok := number(entry[lonKey])
	if !ok {
		return nil
	}

	if s.cache != nil {
		cached, err := s.cache.AddressCacheGet(ctx, ts, lat, lon)
		if err != nil {
			return err
		}
		if cached != "" {
			entry[field] = cached
			return nil
		}
	}

	if s.geocoder == nil {
		return nil
	}
	label, err := s.geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		return err
	}
	label = CleanLabel(label)
	if label == "" {
		return nil
	}
	entry[field] = label

	if s.cache != nil {
		return s.cache.AddressCacheAdd(ctx, ts, []backend.AddressEntry{{Lat: lat, Lng: lon, Address: label}})
	}
	return nil
}

func isEmptyAddress(v any) bool {
	switch a := v.(type) {
	case nil:
		return true
	case string:
		return a == "" || a == "null"
	}
	return false
}

// number reads a non-zero coordinate sent either as a number or a string.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	return f, f != 0
}

// CleanLabel folds a geocoder label to plain ASCII: non-breaking spaces
// become spaces, accents are dropped from their base letters and anything
// else outside ASCII is removed.
func CleanLabel(label string) string {
	label = strings.ReplaceAll(label, "\u00a0", " ")
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
		norm.NFKC,
	)
	out, _, err := transform.String(t, label)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}
