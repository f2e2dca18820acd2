package bps

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapublik/bps-wilayah/pkg/wilayah"
)

func TestFetchWilayahSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "provinsi", q.Get("level"))
		assert.Equal(t, "", q.Get("parent"))
		assert.Equal(t, "2024-1", q.Get("periode_merge"))
		assert.Equal(t, "session=abc", r.Header.Get("Cookie"))
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))

		fmt.Fprint(w, `[{"kode_bps":"11","nama_bps":"ACEH","kode_dagri":"11","nama_dagri":"Aceh"}]`)
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL: server.URL,
		Cookie:  "session=abc",
		Periode: "2024-1",
	})

	items, err := client.FetchWilayah(context.Background(), wilayah.LevelProvinsi, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "11", items[0]["kode_bps"])
	assert.Equal(t, "ACEH", items[0]["nama_bps"])
}

func TestFetchWilayahRetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[{"kode_bps":"11","nama_bps":"ACEH"}]`)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, MaxRetries: 3})
	items, err := client.FetchWilayah(context.Background(), wilayah.LevelProvinsi, "")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchWilayahRetryExhaustion(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, MaxRetries: 3})
	_, err := client.FetchWilayah(context.Background(), wilayah.LevelProvinsi, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchWilayahMalformedJSONIsTerminal(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		fmt.Fprint(w, `<html>maintenance</html>`)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, MaxRetries: 3})
	_, err := client.FetchWilayah(context.Background(), wilayah.LevelProvinsi, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
	// Malformed body means the endpoint answered; retrying cannot help.
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetchWilayahDryRun(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	var out bytes.Buffer
	client := NewClient(Config{BaseURL: server.URL, DryRun: true, Periode: "latest"})
	client.SetDryRunOutput(&out)

	items, err := client.FetchWilayah(context.Background(), wilayah.LevelProvinsi, "")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int32(0), requests.Load())
	assert.Contains(t, out.String(), "DRY-RUN: would request "+server.URL)
	assert.Contains(t, out.String(), "level=provinsi")
}

func TestFetchPeriodesWrappedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"periode":"2024-1"}]}`)
	}))
	defer server.Close()

	client := NewClient(Config{PeriodeURL: server.URL})
	payload, err := client.FetchPeriodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-1"}, ExtractPeriodes(payload))
}
