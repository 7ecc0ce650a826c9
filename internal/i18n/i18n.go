// Package i18n serves the UI message bundles.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used when a request names no supported language.
const DefaultLanguage = "es"

//go:embed messages/*.yaml
var bundledMessages embed.FS

type bundleFile struct {
	Name     string            `yaml:"name"`
	Messages map[string]string `yaml:"messages"`
}

// Bundle holds the messages of every supported language.
// Missing keys fall back to the default language, then to the key itself.
type Bundle struct {
	messages map[string]map[string]string
	names    map[string]string
	tags     []language.Tag
	codes    []string
	matcher  language.Matcher
}

// Load reads the embedded bundles.
func Load() (*Bundle, error) {
	return LoadFS(bundledMessages, "messages")
}

// LoadFS reads every <code>.yaml file in dir.
func LoadFS(fsys fs.FS, dir string) (*Bundle, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{
		messages: make(map[string]map[string]string),
		names:    make(map[string]string),
	}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}
		code := strings.TrimSuffix(entry.Name(), ".yaml")
		if _, err := language.Parse(code); err != nil {
			return nil, fmt.Errorf("bundle %s: %w", entry.Name(), err)
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var file bundleFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("bundle %s: %w", entry.Name(), err)
		}
		bundle.messages[code] = file.Messages
		bundle.names[code] = file.Name
		bundle.codes = append(bundle.codes, code)
	}
	if _, ok := bundle.messages[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("default language %q has no bundle", DefaultLanguage)
	}

	// The matcher prefers its first tag on ties, so the default goes first.
	sort.Slice(bundle.codes, func(i, j int) bool {
		if bundle.codes[i] == DefaultLanguage || bundle.codes[j] == DefaultLanguage {
			return bundle.codes[i] == DefaultLanguage
		}
		return bundle.codes[i] < bundle.codes[j]
	})
	for _, code := range bundle.codes {
		bundle.tags = append(bundle.tags, language.Make(code))
	}
	bundle.matcher = language.NewMatcher(bundle.tags)
	return bundle, nil
}

// Match resolves a language preference such as "en", "fr-CA" or an
// Accept-Language header to a supported code.
func (b *Bundle) Match(preferences ...string) string {
	var tags []language.Tag
	for _, pref := range preferences {
		if strings.TrimSpace(pref) == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(pref)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	if len(tags) == 0 {
		return DefaultLanguage
	}
	_, index, confidence := b.matcher.Match(tags...)
	if confidence == language.No {
		return DefaultLanguage
	}
	return b.codes[index]
}

// Messages returns every message for lang, filled in from the default language.
func (b *Bundle) Messages(lang string) map[string]string {
	code := b.Match(lang)
	merged := make(map[string]string, len(b.messages[DefaultLanguage]))
	for key, value := range b.messages[DefaultLanguage] {
		merged[key] = value
	}
	for key, value := range b.messages[code] {
		merged[key] = value
	}
	return merged
}

// Message returns one message with {name} placeholders replaced from params.
func (b *Bundle) Message(key, lang string, params map[string]string) string {
	code := b.Match(lang)
	message, ok := b.messages[code][key]
	if !ok {
		message, ok = b.messages[DefaultLanguage][key]
	}
	if !ok {
		message = key
	}
	for name, value := range params {
		message = strings.ReplaceAll(message, "{"+name+"}", value)
	}
	return message
}

// Languages maps each supported code to its display name.
func (b *Bundle) Languages() map[string]string {
	languages := make(map[string]string, len(b.names))
	for code, name := range b.names {
		languages[code] = name
	}
	return languages
}
