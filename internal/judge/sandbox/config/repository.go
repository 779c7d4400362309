// Package config resolves language specifications for the backends.
package config

import (
	"context"

	"coderunner/internal/judge/sandbox/profile"
)

// LanguageSpecRepository loads language specifications.
type LanguageSpecRepository interface {
	GetLanguageSpec(ctx context.Context, id string) (profile.LanguageSpec, error)
}

// LanguageCatalog also lists the languages that may be requested.
type LanguageCatalog interface {
	LanguageSpecRepository
	Enabled() []profile.LanguageSpec
}
