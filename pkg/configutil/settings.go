// Package configutil decodes the free-form agents[].settings maps into the
// typed settings of each provider.
package configutil

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/harunnryd/fallback/pkg/errorsx"
)

// Decode validates input against the schema and decodes it into out.
// Failures carry errorsx.ReasonConfigInvalid.
func (s Schema) Decode(input map[string]any, out any) error {
	if err := s.Validate(input); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	if err := DecodeSettings(input, out); err != nil {
		return errorsx.Wrap(fmt.Errorf("%s settings: %w", s.Provider, err), errorsx.ReasonConfigInvalid)
	}
	return nil
}

// DecodeSettings decodes without validation. Keys match fields ignoring
// case, underscores and hyphens; "1500ms" style strings become
// time.Duration and comma separated strings become slices.
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		MatchName: func(key, field string) bool { return normalizeKey(key) == normalizeKey(field) },
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// RequireString fails when value is blank. path names the setting in the error.
func RequireString(value, path string) error {
	if strings.TrimSpace(value) == "" {
		return errorsx.Wrap(fmt.Errorf("%s is required", path), errorsx.ReasonConfigInvalid)
	}
	return nil
}

func StringOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

var keyReplacer = strings.NewReplacer("_", "", "-", "")

func normalizeKey(key string) string {
	return keyReplacer.Replace(strings.ToLower(key))
}
