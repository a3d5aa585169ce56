package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrUnknownMode = errors.New("unknown execution mode")

const defaultBatchSize = 10

type Config struct {
	BaseDir      string `json:"base_dir"`
	DatabaseURL  string `json:"database_url"`
	Mode         Mode   `json:"mode"`
	OutputSuffix string `json:"output_suffix"`
	BatchSize    int    `json:"batch_size"`
}

// Default returns the compiled defaults overridden by .env and the process environment.
func Default() *Config {
	currentDir, _ := os.Getwd()

	cfg := &Config{
		BaseDir:   currentDir,
		Mode:      ModeDemo,
		BatchSize: defaultBatchSize,
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()
	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("SIGNALFOLIO_BASE_DIR"); val != "" {
		c.BaseDir = val
	}
	if val := os.Getenv("SIGNALFOLIO_DATABASE_URL"); val != "" {
		c.DatabaseURL = val
	}
	if val := os.Getenv("SIGNALFOLIO_MODE"); val != "" {
		if mode, err := ParseMode(val); err == nil {
			c.Mode = mode
		}
	}
	if val := os.Getenv("SIGNALFOLIO_OUTPUT_SUFFIX"); val != "" {
		c.OutputSuffix = val
	}
	if val := os.Getenv("SIGNALFOLIO_BATCH_SIZE"); val != "" {
		if v, err := strconv.Atoi(val); err == nil && v > 0 {
			c.BatchSize = v
		}
	}
}

// folderName is the mode folder, with a date suffix for testing runs.
func (c *Config) folderName(now time.Time) string {
	switch c.Mode {
	case ModeProduction:
		return "production"
	case ModeTesting:
		suffix := c.OutputSuffix
		if suffix == "" {
			suffix = now.Format("20060102")
		}
		return "testing_" + suffix
	}
	return ""
}

// PriceFile is the long-format price CSV for a universe.
func (c *Config) PriceFile(universe string) string {
	if c.Mode == ModeDemo {
		return filepath.Join(c.BaseDir, universe+".csv")
	}
	return filepath.Join(c.BaseDir, "data", c.Mode.baseFolder(), universe+".csv")
}

// DecisionDir holds TICKER_strategy_decisions.csv files for the universe's asset class.
func (c *Config) DecisionDir(universe string) string {
	return filepath.Join(c.BaseDir, "decisions", AssetTypeTag(universe))
}

// OutputDir is where per-run portfolio outputs are written.
func (c *Config) OutputDir(universe string, now time.Time) string {
	return filepath.Join(c.BaseDir, outputFolderType(universe), c.folderName(now))
}

// PerformanceFile is the strategy evaluation output for a universe label.
func (c *Config) PerformanceFile(label string) string {
	return filepath.Join(c.BaseDir, "performance", fmt.Sprintf("%s_performance_results.csv", label))
}

// StrategyAveragesFile holds the per-strategy means of PerformanceFile.
func (c *Config) StrategyAveragesFile(label string) string {
	return filepath.Join(c.BaseDir, "performance", fmt.Sprintf("%s_strategy_averages.csv", label))
}

// EnsureDirectories creates the directories a run writes to.
func (c *Config) EnsureDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
