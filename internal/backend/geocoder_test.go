package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocoderReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "52.5,13.4", r.URL.Query().Get("at"))
		assert.Equal(t, "key", r.URL.Query().Get("apiKey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"address":{"label":"Alexanderplatz, Berlin"}},{"address":{"label":"other"}}]}`))
	}))
	defer srv.Close()

	g := NewGeocoder(srv.URL, "key", nil)
	label, err := g.Reverse(context.Background(), 52.5, 13.4)
	require.NoError(t, err)
	assert.Equal(t, "Alexanderplatz, Berlin", label)
}

func TestGeocoderNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	label, err := NewGeocoder(srv.URL, "key", nil).Reverse(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, label)
}

func TestGeocoderClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewGeocoder(srv.URL, "bad", nil).Reverse(context.Background(), 1, 1)
	assert.Error(t, err)
}
