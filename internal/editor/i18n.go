package editor

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"github.com/iota-uz/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Translator resolves a message key with optional template data. Unknown keys come back as-is.
type Translator interface {
	T(key string, params map[string]any) string
}

// Localizer is a Translator over a go-i18n bundle.
type Localizer struct {
	l *i18n.Localizer
}

// NewLocalizer picks the best match among langs from bundle.
func NewLocalizer(bundle *i18n.Bundle, langs ...string) *Localizer {
	return &Localizer{l: i18n.NewLocalizer(bundle, langs...)}
}

func (t *Localizer) T(key string, params map[string]any) string {
	s, err := t.l.Localize(&i18n.LocalizeConfig{MessageID: key, TemplateData: params})
	if err != nil || s == "" {
		return key
	}
	return s
}

// LoadBundle builds a bundle from the embedded locale files, English first.
func LoadBundle() (*i18n.Bundle, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	entries, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	for _, e := range entries {
		data, err := localeFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
	}
	return bundle, nil
}

// English returns the shared English translator.
var English = sync.OnceValue(func() Translator {
	bundle, err := LoadBundle()
	if err != nil {
		panic(err)
	}
	return NewLocalizer(bundle, language.English.String())
})
