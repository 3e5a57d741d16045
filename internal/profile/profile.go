// Package profile loads the monitoring profile (watched domains plus rule
// records) and keeps an atomically published snapshot of it.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"reqmon/internal/logger"
	"reqmon/internal/metrics"
)

// Profile is one immutable snapshot of the monitoring configuration. Rule
// records stay untyped until the rule factory builds them.
type Profile struct {
	Domains []string          `json:"domains"`
	Rules   []json.RawMessage `json:"rules"`
}

// Empty returns the profile used when no configuration is available.
func Empty() *Profile {
	return &Profile{
		Domains: []string{},
		Rules:   []json.RawMessage{},
	}
}

// Provider produces the current profile. Implementations never fail: an
// unreadable source degrades to Empty.
type Provider interface {
	Load(ctx context.Context) *Profile
}

// FileProvider reads a profile from a JSON or YAML file. Files ending in
// .yaml or .yml are parsed as YAML, anything else as JSON.
type FileProvider struct {
	path string
}

// NewFileProvider returns a provider for the file at path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Path returns the profile file location.
func (p *FileProvider) Path() string { return p.path }

// Load reads and parses the profile file. A missing or invalid file is
// logged and yields an empty profile.
func (p *FileProvider) Load(_ context.Context) *Profile {
	log := logger.WithComponent("profile_provider")

	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().
			Str("path", p.path).
			Msg("profile file not found, using default configuration")
		metrics.ProfileReloadsTotal.WithLabelValues("missing").Inc()
		return Empty()
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("path", p.path).
			Msg("error reading profile file, using default configuration")
		metrics.ProfileReloadsTotal.WithLabelValues("failed").Inc()
		return Empty()
	}

	prof, err := parse(p.path, data)
	if err != nil {
		log.Error().
			Err(err).
			Str("path", p.path).
			Msg("error loading profile file, using default configuration")
		metrics.ProfileReloadsTotal.WithLabelValues("failed").Inc()
		return Empty()
	}

	log.Info().
		Str("path", p.path).
		Int("domains", len(prof.Domains)).
		Int("rules", len(prof.Rules)).
		Msg("successfully loaded monitoring profile")
	metrics.ProfileReloadsTotal.WithLabelValues("loaded").Inc()
	return prof
}

// parse decodes a profile document. YAML documents are converted to JSON
// first so rule records are always raw JSON.
func parse(path string, data []byte) (*Profile, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
		data = converted
	}

	var prof Profile
	if err := json.Unmarshal(data, &prof); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if prof.Domains == nil {
		prof.Domains = []string{}
	}
	if prof.Rules == nil {
		prof.Rules = []json.RawMessage{}
	}
	return &prof, nil
}
