package feed

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// SourceSeeds loads per-user subscription lists from YAML files, one file per user.
type SourceSeeds struct {
	seedsDir string
	cache    map[string]*SeedFile
	mu       sync.RWMutex
}

func NewSourceSeeds(seedsDir string) *SourceSeeds {
	return &SourceSeeds{
		seedsDir: seedsDir,
		cache:    make(map[string]*SeedFile),
	}
}

func (ss *SourceSeeds) Run() error {
	if ss.seedsDir == "" {
		return nil
	}
	if _, err := os.Stat(ss.seedsDir); os.IsNotExist(err) {
		return nil
	}

	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(ss.seedsDir, pattern))
		if err != nil {
			return fmt.Errorf("failed to find YAML files: %w", err)
		}
		files = append(files, matches...)
	}

	for _, file := range files {
		seed, err := ss.LoadFile(file)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Seed file loaded", "user", seed.User, "sources", len(seed.Sources))
	}

	return nil
}

func (ss *SourceSeeds) LoadFile(file string) (*SeedFile, error) {
	seed, err := ss.parseFile(file)
	if err != nil {
		return nil, err
	}

	// Filename is the user id unless the file names one
	if seed.User == "" {
		seed.User = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}

	if err := ss.validateSeed(seed); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", file, err)
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.cache[seed.User] = seed

	return seed, nil
}

func (ss *SourceSeeds) GetSeed(user string) (*SeedFile, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	seed, ok := ss.cache[user]
	if !ok {
		return nil, fmt.Errorf("seed file for user '%s' not found", user)
	}
	return seed, nil
}

// GetSeeds returns the loaded seed files ordered by user.
func (ss *SourceSeeds) GetSeeds() []*SeedFile {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	seeds := make([]*SeedFile, 0, len(ss.cache))
	for _, seed := range ss.cache {
		seeds = append(seeds, seed)
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i].User < seeds[j].User })
	return seeds
}

func (ss *SourceSeeds) GetSourceCount() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	count := 0
	for _, seed := range ss.cache {
		count += len(seed.Sources)
	}
	return count
}

func (ss *SourceSeeds) parseFile(file string) (*SeedFile, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seed.User = strings.TrimSpace(seed.User)
	for i := range seed.Sources {
		seed.Sources[i].URL = strings.TrimSpace(seed.Sources[i].URL)
		seed.Sources[i].Title = strings.TrimSpace(seed.Sources[i].Title)
	}

	return &seed, nil
}

func (ss *SourceSeeds) validateSeed(seed *SeedFile) error {
	if seed == nil {
		return fmt.Errorf("seed is nil")
	}

	for i, source := range seed.Sources {
		if err := ValidateFeedURL(source.URL); err != nil {
			return fmt.Errorf("source at index %d: %w", i, err)
		}
		if source.FailureThreshold < 0 {
			return fmt.Errorf("source at index %d: failure threshold must be non-negative", i)
		}
	}

	return nil
}

// ValidateFeedURL accepts absolute http and https URLs only.
func ValidateFeedURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("feed URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid feed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("feed URL must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("feed URL must have a host")
	}
	return nil
}
