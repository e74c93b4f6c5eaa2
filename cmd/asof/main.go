package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/asof-dev/asof"
	"github.com/asof-dev/asof/internal/conda"
	"github.com/asof-dev/asof/internal/config"
	"github.com/asof-dev/asof/internal/core"
	"github.com/asof-dev/asof/internal/namemap"
	"github.com/asof-dev/asof/internal/pypi"
)

var (
	queryType  string
	configPath string
	channels   []string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "asof <when> <query>",
		Short: "Report the newest package version available as of a point in time",
		Long: "asof queries the PyPI simple index and, when conda or mamba is installed,\n" +
			"conda channels, and reports the newest version of a package that had been\n" +
			"published at or before the given cutoff time.",
		Args:          cobra.ExactArgs(2),
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.Flags().StringVarP(&queryType, "query-type", "t", "pypi",
		`How to interpret the query name: "pypi", "conda", or "import"`)
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path")
	rootCmd.Flags().StringArrayVar(&channels, "channel", nil, "Conda channel to search (repeatable; overrides config)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	when, err := parseWhen(args[0])
	if err != nil {
		return err
	}
	qt, err := namemap.ParseQueryType(queryType)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(channels) > 0 {
		cfg.CondaChannels = channels
	}

	ctx := cmd.Context()
	httpClient := asof.DefaultClient()

	names, err := canonicalNames(cmd, cfg, httpClient, logger, qt, args[1])
	if err != nil {
		return err
	}

	fmt.Printf("Query: %s\n", args[1])
	fmt.Println(names.Pretty())

	pypiReg := pypi.New(cfg.PyPIBaseURL, httpClient).WithEnv(cfg.Env()).WithLogger(logger)
	matches, err := pypiReg.AsOf(ctx, names.PyPIName, when)
	if err != nil {
		return fmt.Errorf("querying PyPI: %w", err)
	}
	printMatches(matches)

	command := cfg.CondaCommand
	if command == "" {
		var ok bool
		if command, ok = conda.FindCommand(); !ok {
			logger.Debug("no conda-compatible command on PATH, skipping conda search")
			return nil
		}
	}
	condaReg := conda.New(command).WithChannels(cfg.CondaChannels...).WithLogger(logger)
	matches, err = condaReg.AsOf(ctx, names.CondaName, when)
	if err != nil {
		return fmt.Errorf("querying conda: %w", err)
	}
	printMatches(matches)

	return nil
}

// canonicalNames refreshes the name-mapping cache and resolves the queried
// name. Cache problems degrade to an identity mapping rather than aborting
// the query.
func canonicalNames(cmd *cobra.Command, cfg config.Config, httpClient *asof.Client, logger *slog.Logger, qt namemap.QueryType, name string) (namemap.CanonicalNames, error) {
	identity := namemap.CanonicalNames{CondaName: name, PyPIName: name}

	cachePath, err := cfg.DefaultCachePath()
	if err != nil {
		logger.Warn("cache unavailable, names map to themselves", "error", err)
		return identity, nil
	}
	db, err := namemap.Open(cachePath)
	if err != nil {
		logger.Warn("cache unavailable, names map to themselves", "error", err)
		return identity, nil
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()
	fresh, err := db.Refresh(ctx, httpClient, cfg.NameMappingURL, cfg.Lifetime())
	if err != nil {
		logger.Warn("name mapping refresh failed, using cached table", "error", err)
	} else if fresh {
		logger.Debug("updating name mapping table", "url", cfg.NameMappingURL)
		if err := db.PopulateNameMapping(ctx, cfg.NameMappingURL); err != nil {
			logger.Warn("name mapping update failed", "error", err)
		}
	}

	names, err := db.Canonical(ctx, qt, name)
	if err != nil {
		logger.Warn("name lookup failed, names map to themselves", "error", err)
		return identity, nil
	}
	return names, nil
}

func printMatches(m core.Matches) {
	if m.Empty() {
		fmt.Println(m.Message)
		return
	}
	for _, match := range m.Matches {
		fmt.Println(match.Pretty())
	}
}

// whenFormats are tried in order; unzoned forms are taken in local time,
// matching what a person means by "as of 2022-03-04".
var whenFormats = []struct {
	layout string
	local  bool
}{
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02T15:04", true},
	{"2006-01-02", true},
}

func parseWhen(s string) (time.Time, error) {
	for _, f := range whenFormats {
		if f.local {
			if t, err := time.ParseInLocation(f.layout, s, time.Local); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.Parse(f.layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized cutoff time %q (want ISO format, e.g. 2022-03-04 or 2022-03-04T15:04:05Z)", s)
}
