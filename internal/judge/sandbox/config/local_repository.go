package config

import (
	"context"
	"slices"
	"strings"

	"coderunner/internal/judge/model"
	"coderunner/internal/judge/sandbox/profile"
	appErr "coderunner/pkg/errors"

	mapset "github.com/deckarep/golang-set/v2"
)

// LanguageConfig is the YAML surface of the language table.
type LanguageConfig struct {
	// Enabled restricts the table to these ids. Empty means all.
	Enabled   []string               `yaml:"enabled"`
	Overrides []profile.LanguageSpec `yaml:"overrides"`
}

// LocalRepository serves language specs from the built-in table plus overrides.
type LocalRepository struct {
	languages map[string]profile.LanguageSpec
	enabled   mapset.Set[string]
}

// NewLocalRepository merges cfg over the built-in table.
func NewLocalRepository(cfg LanguageConfig) *LocalRepository {
	langMap := make(map[string]profile.LanguageSpec)
	for _, lang := range profile.Defaults() {
		langMap[lang.ID] = lang
	}
	for _, override := range cfg.Overrides {
		id := strings.ToLower(strings.TrimSpace(override.ID))
		if id == "" {
			continue
		}
		override.ID = id
		if base, ok := langMap[id]; ok {
			langMap[id] = profile.Merge(base, override)
			continue
		}
		langMap[id] = override
	}

	enabled := mapset.NewSet[string]()
	if len(cfg.Enabled) == 0 {
		for id := range langMap {
			enabled.Add(id)
		}
	}
	for _, id := range cfg.Enabled {
		id = strings.ToLower(strings.TrimSpace(id))
		if _, ok := langMap[id]; ok {
			enabled.Add(id)
		}
	}
	return &LocalRepository{languages: langMap, enabled: enabled}
}

// GetLanguageSpec returns the spec of an enabled language.
func (r *LocalRepository) GetLanguageSpec(ctx context.Context, id string) (profile.LanguageSpec, error) {
	if strings.TrimSpace(id) == "" {
		return profile.LanguageSpec{}, appErr.ValidationError("language", "required")
	}
	key := strings.ToLower(strings.TrimSpace(id))
	lang, ok := r.languages[key]
	if !ok || !r.enabled.Contains(key) {
		return profile.LanguageSpec{}, appErr.Newf(appErr.LanguageNotSupported, "Unsupported language: %s", id)
	}
	return lang, nil
}

// Enabled lists enabled specs, known languages first in display order.
func (r *LocalRepository) Enabled() []profile.LanguageSpec {
	out := make([]profile.LanguageSpec, 0, r.enabled.Cardinality())
	seen := mapset.NewSet[string]()
	for _, known := range model.Languages {
		id := string(known)
		if r.enabled.Contains(id) {
			out = append(out, r.languages[id])
			seen.Add(id)
		}
	}
	extra := r.enabled.Difference(seen).ToSlice()
	slices.Sort(extra)
	for _, id := range extra {
		out = append(out, r.languages[id])
	}
	return out
}
