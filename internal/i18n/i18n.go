package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"

	"github.com/rickgao/escrow-realtime/internal/model"
)

// BaseLocale is the locale every other catalog falls back to.
const BaseLocale = "en-US"

// ErrNoCatalogs is returned when a filesystem holds no locale files.
var ErrNoCatalogs = errors.New("no locale catalogs found")

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

//go:embed locales/*.yaml
var embeddedFS embed.FS

// Renderer turns notifications into display text for a locale.
// It is safe for concurrent use once loaded.
type Renderer struct {
	builder *catalog.Builder
	matcher language.Matcher
	base    language.Tag
	tags    []language.Tag
	keys    map[language.Tag]map[string]struct{}
}

// LoadEmbedded loads the catalogs bundled with the binary.
func LoadEmbedded() (*Renderer, error) {
	return LoadFromFS(embeddedFS)
}

// LoadFromFS loads every locales/*.yaml file from fsys.
func LoadFromFS(fsys fs.FS) (*Renderer, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, ErrNoCatalogs
	}
	sort.Strings(paths)

	base := language.MustParse(BaseLocale)
	r := &Renderer{
		builder: catalog.NewBuilder(catalog.Fallback(base)),
		base:    base,
		keys:    make(map[language.Tag]map[string]struct{}),
	}

	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		if err := r.add(p, file); err != nil {
			return nil, err
		}
	}

	if _, ok := r.keys[base]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}

	// The matcher's first tag is its default.
	sort.SliceStable(r.tags, func(i, j int) bool {
		if r.tags[i] == base {
			return true
		}
		if r.tags[j] == base {
			return false
		}
		return r.tags[i].String() < r.tags[j].String()
	})
	r.matcher = language.NewMatcher(r.tags)

	return r, nil
}

func (r *Renderer) add(p string, file catalogFile) error {
	locale := strings.TrimSpace(file.Locale)
	fromPath := strings.TrimSuffix(path.Base(p), path.Ext(p))
	if locale == "" {
		return fmt.Errorf("catalog %s: locale is required", p)
	}
	if locale != fromPath {
		return fmt.Errorf("catalog %s: locale %q must match file name %q", p, locale, fromPath)
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("catalog %s: parse locale: %w", p, err)
	}
	if _, exists := r.keys[tag]; exists {
		return fmt.Errorf("catalog %s: locale %q already loaded", p, locale)
	}

	keys := make(map[string]struct{}, len(file.Messages))
	for key, value := range file.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("catalog %s: message key cannot be blank", p)
		}
		// Catalog strings are format strings; templates carry no verbs.
		if err := r.builder.SetString(tag, key, strings.ReplaceAll(value, "%", "%%")); err != nil {
			return fmt.Errorf("catalog %s: key %q: %w", p, key, err)
		}
		keys[key] = struct{}{}
	}

	r.keys[tag] = keys
	r.tags = append(r.tags, tag)
	return nil
}

// Locales returns the loaded locale identifiers, base locale first.
func (r *Renderer) Locales() []string {
	out := make([]string, len(r.tags))
	for i, tag := range r.tags {
		out[i] = tag.String()
	}
	return out
}

// Match returns the closest loaded locale for a requested one.
// Unknown or empty locales resolve to the base locale.
func (r *Renderer) Match(locale string) language.Tag {
	if strings.TrimSpace(locale) == "" {
		return r.base
	}
	_, index, confidence := r.matcher.Match(language.Make(locale))
	if confidence == language.No {
		return r.base
	}
	return r.tags[index]
}

// Lookup returns the raw template for key in locale, falling back to the
// base locale.
func (r *Renderer) Lookup(locale, key string) (string, bool) {
	tag, ok := r.resolve(r.Match(locale), key)
	if !ok {
		return "", false
	}
	return message.NewPrinter(tag, message.Catalog(r.builder)).Sprintf(key), true
}

func (r *Renderer) resolve(tag language.Tag, key string) (language.Tag, bool) {
	if _, ok := r.keys[tag][key]; ok {
		return tag, true
	}
	if _, ok := r.keys[r.base][key]; ok {
		return r.base, true
	}
	return language.Und, false
}

// Render returns the display text of n. A notification without a known
// translation key renders as its server-provided message.
func (r *Renderer) Render(n model.Notification, locale string) string {
	key := strings.TrimSpace(n.TranslationKey)
	if key == "" {
		return n.Message
	}

	tag, ok := r.resolve(r.Match(locale), key)
	if !ok {
		if n.Message != "" {
			return n.Message
		}
		return key
	}

	p := message.NewPrinter(tag, message.Catalog(r.builder))
	return substitute(p, p.Sprintf(key), n.TranslationVariables)
}

// substitute replaces {name} placeholders. Placeholders without a variable
// are left as they are.
func substitute(p *message.Printer, text string, vars map[string]any) string {
	if len(vars) == 0 || !strings.Contains(text, "{") {
		return text
	}

	pairs := make([]string, 0, len(vars)*2)
	for name, v := range vars {
		var s string
		switch v := v.(type) {
		case string:
			s = v
		case nil:
			s = ""
		default:
			s = p.Sprint(v)
		}
		pairs = append(pairs, "{"+name+"}", s)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
