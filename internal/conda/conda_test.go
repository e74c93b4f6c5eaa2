package conda

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func fakeRunner(stdout, stderr string, err error) Runner {
	return func(ctx context.Context, command string, args []string) ([]byte, []byte, error) {
		return []byte(stdout), []byte(stderr), err
	}
}

func TestFetchFilesArgs(t *testing.T) {
	var gotCommand string
	var gotArgs []string
	runner := func(ctx context.Context, command string, args []string) ([]byte, []byte, error) {
		gotCommand = command
		gotArgs = args
		return []byte(`{"numpy": []}`), nil, nil
	}

	reg := New("conda").WithChannels("defaults", "bioconda").WithRunner(runner)
	if _, err := reg.FetchFiles(context.Background(), "numpy"); err != nil {
		t.Fatalf("FetchFiles failed: %v", err)
	}

	if gotCommand != "conda" {
		t.Errorf("expected conda, got %s", gotCommand)
	}
	want := "search --json numpy --override-channels --skip-flexible-search --channel defaults --channel bioconda"
	if got := strings.Join(gotArgs, " "); got != want {
		t.Errorf("args mismatch:\n got  %s\n want %s", got, want)
	}
}

func TestFetchFilesMambaSkipsFlexibleFlag(t *testing.T) {
	var gotArgs []string
	runner := func(ctx context.Context, command string, args []string) ([]byte, []byte, error) {
		gotArgs = args
		return []byte(`{"result": {"pkgs": []}}`), nil, nil
	}

	reg := New("mamba").WithRunner(runner)
	if _, err := reg.FetchFiles(context.Background(), "numpy"); err != nil {
		t.Fatalf("FetchFiles failed: %v", err)
	}
	for _, arg := range gotArgs {
		if arg == "--skip-flexible-search" {
			t.Error("--skip-flexible-search is a conda-only flag")
		}
	}
}

func TestParseSearchOutputCondaShape(t *testing.T) {
	out := `{"numpy": [
		{"fn": "numpy-1.21.0-py39_0.tar.bz2", "version": "1.21.0", "channel": "pkgs/main/linux-64", "timestamp": 1624500000000},
		{"fn": "numpy-1.22.0-py39_0.conda", "version": "1.22.0", "channel": "pkgs/main/linux-64", "timestamp": 1640995200000}
	]}`
	entries, err := parseSearchOutput([]byte(out))
	if err != nil {
		t.Fatalf("parseSearchOutput failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Version != "1.22.0" {
		t.Errorf("unexpected version: %s", entries[1].Version)
	}
}

func TestParseSearchOutputMambaShape(t *testing.T) {
	out := `{"result": {"pkgs": [
		{"fn": "numpy-1.22.0-py39_0.conda", "version": "1.22.0", "channel": "conda-forge", "timestamp": 1640995200000}
	]}}`
	entries, err := parseSearchOutput([]byte(out))
	if err != nil {
		t.Fatalf("parseSearchOutput failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Channel != "conda-forge" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestFetchFilesNormalizesTimestamps(t *testing.T) {
	out := `{"numpy": [
		{"fn": "numpy-1.22.0-py39_0.conda", "version": "1.22.0", "channel": "pkgs/main", "timestamp": 1640995200000},
		{"fn": "numpy-0.9.0-py23_0.tar.bz2", "version": "0.9.0", "channel": "pkgs/free"}
	]}`
	reg := New("conda").WithRunner(fakeRunner(out, "", nil))

	files, err := reg.FetchFiles(context.Background(), "numpy")
	if err != nil {
		t.Fatalf("FetchFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if want := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC); !files[0].UploadedAt.Equal(want) {
		t.Errorf("millisecond timestamp: got %v, want %v", files[0].UploadedAt, want)
	}
	// Entries without a timestamp predate conda's metadata and must stay
	// visible at any cutoff.
	if !files[1].UploadedAt.Equal(time.Unix(0, 0)) {
		t.Errorf("missing timestamp should map to the epoch, got %v", files[1].UploadedAt)
	}
}

func TestAsOfPicksNewestAtCutoff(t *testing.T) {
	out := `{"numpy": [
		{"fn": "numpy-1.21.0-py39_0.tar.bz2", "version": "1.21.0", "channel": "pkgs/main", "timestamp": 1624500000000},
		{"fn": "numpy-1.22.0-py39_0.conda", "version": "1.22.0", "channel": "pkgs/main", "timestamp": 1640995200000},
		{"fn": "numpy-1.23.0-py310_0.conda", "version": "1.23.0", "channel": "conda-forge", "timestamp": 1672531200000}
	]}`
	reg := New("conda").WithRunner(fakeRunner(out, "", nil))

	matches, err := reg.AsOf(context.Background(), "numpy", time.Date(2022, 3, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("AsOf failed: %v", err)
	}
	best := matches.Best()
	if best == nil || best.Version.String() != "1.22.0" {
		t.Errorf("expected 1.22.0, got %v", best)
	}
	// The match reports the record's own channel, not the generic
	// diagnostic source.
	if best != nil && best.Source != "pkgs/main" {
		t.Errorf("unexpected source: %q", best.Source)
	}
}

func TestAsOfPackageNotFound(t *testing.T) {
	stderr := "PackagesNotFoundError: The following packages are not available from current channels:\n\n  - nosuchpkg"
	reg := New("conda").WithRunner(fakeRunner("", stderr, errors.New("exit status 1")))

	matches, err := reg.AsOf(context.Background(), "nosuchpkg", time.Now())
	if err != nil {
		t.Fatalf("an unknown package is an empty result, not an error: %v", err)
	}
	if !matches.Empty() {
		t.Errorf("expected empty result, got %+v", matches)
	}
	if !strings.Contains(matches.Message, "nosuchpkg") {
		t.Errorf("message should name the package: %q", matches.Message)
	}
}

func TestAsOfCommandFailure(t *testing.T) {
	reg := New("conda").WithRunner(fakeRunner("", "CondaHTTPError: something broke\nmore detail", fmt.Errorf("exit status 1")))

	if _, err := reg.AsOf(context.Background(), "numpy", time.Now()); err == nil {
		t.Fatal("a failed search command must be an error")
	}
}

func TestParseChannelName(t *testing.T) {
	tests := []struct {
		in, channel, name string
	}{
		{"conda-forge/numpy", "conda-forge", "numpy"},
		{"numpy", "", "numpy"},
	}
	for _, tt := range tests {
		channel, name := parseChannelName(tt.in)
		if channel != tt.channel || name != tt.name {
			t.Errorf("parseChannelName(%q) = (%q, %q), want (%q, %q)",
				tt.in, channel, name, tt.channel, tt.name)
		}
	}
}

func TestURLs(t *testing.T) {
	u := &URLs{}
	if got := u.Registry("numpy", "1.22.0"); got != "https://anaconda.org/conda-forge/numpy/1.22.0" {
		t.Errorf("unexpected registry URL: %s", got)
	}
	if got := u.PURL("bioconda/samtools", "1.17"); got != "pkg:conda/bioconda/samtools@1.17" {
		t.Errorf("unexpected purl: %s", got)
	}
}
