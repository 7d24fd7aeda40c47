package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rd/internal/cache"
	"github.com/joescharf/rd/internal/merge"
	"github.com/joescharf/rd/internal/output"
	"github.com/joescharf/rd/internal/remote"
	"github.com/joescharf/rd/internal/sessions"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui         *output.UI
	dataCache  *cache.Cache
	backend    sessions.Backend
	backendSet bool
	projEngine *merge.Engine
	sessionMgr *sessions.Manager

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "rd",
	Short: "Research Dashboard - review company research reports",
	Long: `rd manages the review workflow for AI-generated company research.
It tracks projects and their report artifacts, lets you approve, reject,
score, and annotate companies, and keeps every edit in a local cache that
syncs to the research backend in the background.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/rd/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "rd")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RD")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "rd")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("cache_path", filepath.Join(defaultConfigDir, "rd.db"))
	viper.SetDefault("backend.base_url", "")
	viper.SetDefault("sync.debounce_ms", 1000)
	viper.SetDefault("serve.port", 8817)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Cache, backend, engine, and session manager are initialized lazily
	// so config/version commands run without touching the database.
}

// rootRun handles `rd` with no subcommand: refresh the project list and
// show the dashboard.
func rootRun() error {
	eng, err := getEngine()
	if err != nil {
		return err
	}

	ctx := context.Background()
	eng.LoadCached(ctx)
	projects := eng.Refresh(ctx)

	var active []string
	table := ui.Table([]string{"Client", "Project", "Source", "Companies", "Reviewed", "Progress"})
	for _, p := range projects {
		if p.Archived {
			continue
		}
		active = append(active, p.ID)

		reviewed := "-"
		progress := "-"
		if s := p.StatsSnapshot; s != nil {
			reviewed = fmt.Sprintf("%d/%d", s.Reviewed, s.Total)
			progress = output.ProgressColor(s.PercentComplete)
		}
		table.Append([]string{
			p.ClientName,
			p.ProjectName,
			string(p.Source),
			fmt.Sprintf("%d", p.CompanyCount),
			reviewed,
			progress,
		})
	}

	if len(active) == 0 {
		ui.Info("No projects yet. Use 'rd project add <client>' or configure backend.base_url and run 'rd project refresh'.")
		return nil
	}

	table.Render()
	return nil
}

// getCache returns the shared review cache, initializing it on first call.
func getCache() (*cache.Cache, error) {
	if dataCache != nil {
		return dataCache, nil
	}

	cachePath := viper.GetString("cache_path")
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	c, err := cache.New(cachePath)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	if err := c.Migrate(context.Background()); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}

	dataCache = c
	return dataCache, nil
}

// getBackend returns the remote backend client, or nil when no
// backend.base_url is configured (cache-only mode).
func getBackend() sessions.Backend {
	if backendSet {
		return backend
	}
	backendSet = true

	if baseURL := viper.GetString("backend.base_url"); baseURL != "" {
		backend = remote.New(baseURL, slog.Default())
	}
	return backend
}

// getEngine returns the shared project merge engine.
func getEngine() (*merge.Engine, error) {
	if projEngine != nil {
		return projEngine, nil
	}

	c, err := getCache()
	if err != nil {
		return nil, err
	}

	projEngine = merge.NewEngine(getBackend(), c, slog.Default())
	return projEngine, nil
}

// getManager returns the shared scope session manager.
func getManager() (*sessions.Manager, error) {
	if sessionMgr != nil {
		return sessionMgr, nil
	}

	c, err := getCache()
	if err != nil {
		return nil, err
	}
	eng, err := getEngine()
	if err != nil {
		return nil, err
	}

	quiet := time.Duration(viper.GetInt("sync.debounce_ms")) * time.Millisecond
	sessionMgr = sessions.NewManager(c, getBackend(), eng,
		sessions.WithQuietPeriod(quiet),
		sessions.WithLogger(slog.Default()))
	return sessionMgr, nil
}

// requireBackend fails commands that cannot work in cache-only mode.
func requireBackend() (sessions.Backend, error) {
	if b := getBackend(); b != nil {
		return b, nil
	}
	return nil, fmt.Errorf("no backend configured: set backend.base_url in config or RD_BACKEND_BASE_URL")
}
