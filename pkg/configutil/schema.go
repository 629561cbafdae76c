package configutil

import (
	"fmt"
	"sort"
	"strings"
)

// Schema names the settings keys one agent provider understands.
type Schema struct {
	Provider     string
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// SettingsError lists every problem found in one settings map.
type SettingsError struct {
	Provider string
	Missing  []string
	Unknown  []string
}

func (e *SettingsError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(e.Unknown, ", "))
	}
	msg := strings.Join(parts, "; ")
	if e.Provider == "" {
		return msg
	}
	return fmt.Sprintf("%s settings: %s", e.Provider, msg)
}

// Validate reports required keys that are absent or blank and, unless
// AllowUnknown is set, keys the schema does not list.
func (s Schema) Validate(input map[string]any) error {
	required := make(map[string]string, len(s.Required))
	known := make(map[string]bool, len(s.Required)+len(s.Optional))
	for _, k := range s.Required {
		required[normalizeKey(k)] = k
		known[normalizeKey(k)] = true
	}
	for _, k := range s.Optional {
		known[normalizeKey(k)] = true
	}

	serr := &SettingsError{Provider: s.Provider}
	for k, v := range input {
		nk := normalizeKey(k)
		switch {
		case !known[nk]:
			if !s.AllowUnknown {
				serr.Unknown = append(serr.Unknown, k)
			}
		case !blank(v):
			delete(required, nk)
		}
	}
	for _, k := range required {
		serr.Missing = append(serr.Missing, k)
	}
	if len(serr.Missing) == 0 && len(serr.Unknown) == 0 {
		return nil
	}
	sort.Strings(serr.Missing)
	sort.Strings(serr.Unknown)
	return serr
}

func blank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}
