package namemap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asof-dev/asof/client"
)

const mappingJSON = `[
	{"conda_name": "pytorch", "import_name": "torch", "pypi_name": "torch"},
	{"conda_name": "pillow", "import_name": "PIL", "pypi_name": "pillow"},
	{"conda_name": "python-dateutil", "import_name": "dateutil", "pypi_name": "python-dateutil"}
]`

func openTestDB(t *testing.T) *DB {
	t.Helper()
	// A shared on-disk file: with the pooled database/sql connections an
	// in-memory database would give each connection its own empty schema.
	d, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func mappingServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(mappingJSON))
	}))
}

func TestRefreshDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	server := mappingServer(t, &hits)
	defer server.Close()

	d := openTestDB(t)
	c := client.NewClient(client.WithMaxRetries(0))
	ctx := context.Background()

	fresh, err := d.Refresh(ctx, c, server.URL, time.Hour)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !fresh {
		t.Error("first Refresh should download")
	}

	fresh, err = d.Refresh(ctx, c, server.URL, time.Hour)
	if err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if fresh {
		t.Error("second Refresh within the lifetime should hit the cache")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected 1 download, got %d", got)
	}
}

func TestRefreshExpiredLifetime(t *testing.T) {
	var hits atomic.Int32
	server := mappingServer(t, &hits)
	defer server.Close()

	d := openTestDB(t)
	c := client.NewClient(client.WithMaxRetries(0))
	ctx := context.Background()

	if _, err := d.Refresh(ctx, c, server.URL, time.Hour); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	// A negative lifetime puts the cutoff in the future, expiring any
	// cached copy regardless of clock granularity.
	fresh, err := d.Refresh(ctx, c, server.URL, -time.Hour)
	if err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if !fresh {
		t.Error("an expired copy should force a re-download")
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("expected 2 downloads, got %d", got)
	}
}

func TestPopulateNameMapping(t *testing.T) {
	var hits atomic.Int32
	server := mappingServer(t, &hits)
	defer server.Close()

	d := openTestDB(t)
	c := client.NewClient(client.WithMaxRetries(0))
	ctx := context.Background()

	if _, err := d.Refresh(ctx, c, server.URL, time.Hour); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if err := d.PopulateNameMapping(ctx, server.URL); err != nil {
		t.Fatalf("PopulateNameMapping failed: %v", err)
	}

	tests := []struct {
		queryType QueryType
		name      string
		want      CanonicalNames
	}{
		{QueryConda, "pytorch", CanonicalNames{CondaName: "pytorch", PyPIName: "torch"}},
		{QueryImport, "PIL", CanonicalNames{CondaName: "pillow", PyPIName: "pillow"}},
		{QueryPyPI, "python-dateutil", CanonicalNames{CondaName: "python-dateutil", PyPIName: "python-dateutil"}},
	}
	for _, tt := range tests {
		got, err := d.Canonical(ctx, tt.queryType, tt.name)
		if err != nil {
			t.Fatalf("Canonical(%v, %q) failed: %v", tt.queryType, tt.name, err)
		}
		if got != tt.want {
			t.Errorf("Canonical(%v, %q) = %+v, want %+v", tt.queryType, tt.name, got, tt.want)
		}
	}
}

func TestPopulateWithoutDownload(t *testing.T) {
	d := openTestDB(t)
	if err := d.PopulateNameMapping(context.Background(), "https://example.invalid/mapping.json"); err == nil {
		t.Fatal("populating from a URL that was never downloaded must fail")
	}
}

func TestCanonicalUnknownNameMapsToItself(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	for _, queryType := range []QueryType{QueryPyPI, QueryConda, QueryImport} {
		got, err := d.Canonical(ctx, queryType, "requests")
		if err != nil {
			t.Fatalf("Canonical(%v) failed: %v", queryType, err)
		}
		want := CanonicalNames{CondaName: "requests", PyPIName: "requests"}
		if got != want {
			t.Errorf("Canonical(%v) = %+v, want identity mapping", queryType, got)
		}
	}
}

func TestParseQueryType(t *testing.T) {
	for _, s := range []string{"pypi", "conda", "import"} {
		qt, err := ParseQueryType(s)
		if err != nil {
			t.Fatalf("ParseQueryType(%q) failed: %v", s, err)
		}
		if qt.String() != s {
			t.Errorf("round trip broke: %q -> %v -> %q", s, qt, qt.String())
		}
	}
	if _, err := ParseQueryType("npm"); err == nil {
		t.Error("expected an error for an unsupported query type")
	}
}
