package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding the ones already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// EnvString returns a non-empty environment value.
func EnvString(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses an integer environment value.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvDuration parses a duration environment value such as "1500ms".
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// EnvBool parses a boolean environment value.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return b, true, nil
}

// ApplyEnv overrides cfg with SCRAPER_* environment variables.
func ApplyEnv(cfg *Config) error {
	strs := map[string]*string{
		"SCRAPER_BASE_URL":       &cfg.BaseURL,
		"SCRAPER_MODE":           &cfg.Mode,
		"SCRAPER_BOOKS_OUTPUT":   &cfg.BooksOutput,
		"SCRAPER_REVIEWS_OUTPUT": &cfg.ReviewsOutput,
		"SCRAPER_FORMAT":         &cfg.OutputFormat,
		"SCRAPER_USER_AGENT":     &cfg.UserAgent,
		"SCRAPER_PAGES_DIR":      &cfg.PagesDir,
		"SCRAPER_DEBUG_DIR":      &cfg.DebugDir,
		"SCRAPER_METRICS_ADDR":   &cfg.MetricsAddr,
		"CHROME_BIN":             &cfg.ChromePath,
	}
	for key, dst := range strs {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		"SCRAPER_START_ID":        &cfg.StartID,
		"SCRAPER_END_ID":          &cfg.EndID,
		"SCRAPER_MAX_RETRIES":     &cfg.MaxRetries,
		"SCRAPER_MAX_REVIEWS":     &cfg.MaxReviews,
		"SCRAPER_BATCH_SIZE":      &cfg.BatchSize,
		"SCRAPER_DEDUPE_MAX_SIZE": &cfg.DedupeMaxSize,
		"SCRAPER_PROGRESS_EVERY":  &cfg.ProgressEvery,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"SCRAPER_DELAY":          &cfg.Delay,
		"SCRAPER_RANDOM_DELAY":   &cfg.RandomDelay,
		"SCRAPER_TIMEOUT":        &cfg.Timeout,
		"SCRAPER_RENDER_TIMEOUT": &cfg.RenderTimeout,
	}
	for key, dst := range durations {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	if value, ok, err := EnvBool("SCRAPER_HEADLESS"); err != nil {
		return err
	} else if ok {
		cfg.Headless = value
	}
	return nil
}
