// Package i18n resolves tool titles and descriptions from embedded
// locale dictionaries. The language comes from MCP_LANG or LANG;
// unknown languages and missing keys fall back to English and to the
// key itself.
package i18n

import (
	"embed"
	"encoding/json"
	"os"
	"regexp"
	"strings"
	"sync"
)

//go:embed locales/*/common.json
var localeFS embed.FS

const fallbackLang = "en"

var langPattern = regexp.MustCompile(`^[a-z]{2}`)

var (
	mu    sync.Mutex
	cache map[string]map[string]any
)

// Lang returns the two-letter language code in effect.
func Lang() string {
	for _, env := range []string{os.Getenv("MCP_LANG"), os.Getenv("LANG")} {
		if m := langPattern.FindString(strings.ToLower(env)); m != "" {
			return m
		}
	}
	return fallbackLang
}

func dict(lang string) map[string]any {
	mu.Lock()
	defer mu.Unlock()
	if cache == nil {
		cache = make(map[string]map[string]any)
	}
	if d, ok := cache[lang]; ok {
		return d
	}

	data, err := localeFS.ReadFile("locales/" + lang + "/common.json")
	if err != nil && lang != fallbackLang {
		cache[lang] = dictLocked(fallbackLang)
		return cache[lang]
	}
	var d map[string]any
	if err == nil {
		if err := json.Unmarshal(data, &d); err != nil {
			d = nil
		}
	}
	if d == nil {
		d = map[string]any{}
	}
	cache[lang] = d
	return d
}

func dictLocked(lang string) map[string]any {
	if d, ok := cache[lang]; ok {
		return d
	}
	data, err := localeFS.ReadFile("locales/" + lang + "/common.json")
	var d map[string]any
	if err == nil {
		json.Unmarshal(data, &d)
	}
	if d == nil {
		d = map[string]any{}
	}
	cache[lang] = d
	return d
}

// T looks up a dotted key like "tools.ping.title" in the active
// dictionary. Missing keys return the key itself, so an untranslated
// tool is still identifiable.
func T(key string) string {
	current := any(dict(Lang()))
	for _, part := range strings.Split(key, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return key
		}
		current, ok = object[part]
		if !ok {
			return key
		}
	}
	if s, ok := current.(string); ok {
		return s
	}
	return key
}
