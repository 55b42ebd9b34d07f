package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	// EnvPrefix selects environment overrides: QIDMERGE_BATCH_SIZE -> batch_size.
	EnvPrefix = "QIDMERGE_"

	mergeSection    = "wikidata_merge"
	datasetsSection = "datasets"
)

// flagKeys maps flags whose name differs from their config key.
var flagKeys = map[string]string{
	"props":    "wikidata_match_props",
	"lang":     "languages",
}

// runFlags are command flags that are not configuration keys.
var runFlags = map[string]bool{
	"input":    true,
	"output":   true,
	"config":   true,
	"dataset":  true,
	"report":   true,
	"log-json": true,
	"verbose":  true,
}

// LoadOptions selects the sources for Load.
type LoadOptions struct {
	// File is an optional YAML file with a wikidata_merge section and a datasets map.
	File string
	// Dataset picks an entry of the datasets map to overlay on wikidata_merge.
	Dataset string
	// Flags are the parsed command flags; only flags set explicitly are applied.
	Flags *pflag.FlagSet
}

// Load resolves and validates the configuration.
// Precedence (highest to lowest): flags > env vars > dataset overlay > wikidata_merge > defaults.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if opts.File != "" {
		fk := koanf.New(".")
		if err := fk.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, invalid(errors.Wrapf(err, "read config file %s", opts.File),
				"check that the file exists and is valid YAML")
		}
		if err := k.Merge(languageAlias(fk.Cut(mergeSection))); err != nil {
			return nil, errors.Wrap(err, "merge wikidata_merge section")
		}
		if opts.Dataset != "" {
			key := datasetsSection + "." + opts.Dataset
			if !fk.Exists(key) {
				return nil, invalid(errors.Newf("dataset %q not found in %s", opts.Dataset, opts.File),
					"available datasets: "+strings.Join(fk.MapKeys(datasetsSection), ", "))
			}
			if err := k.Merge(languageAlias(fk.Cut(key))); err != nil {
				return nil, errors.Wrapf(err, "merge dataset %s", opts.Dataset)
			}
		}
	} else if opts.Dataset != "" {
		return nil, invalid(errors.Newf("dataset %q given without a config file", opts.Dataset),
			"pass --config with a datasets section")
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, errors.Wrap(err, "load env vars")
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || runFlags[f.Name] {
				return "", nil
			}
			if f.Name == "code-col" {
				// The override goes first; the configured candidates stay as fallbacks.
				return "code_candidates", append(flagStrings(f), k.Strings("code_candidates")...)
			}
			if f.Name == "no-bom" {
				v, _ := opts.Flags.GetBool("no-bom")
				return "bom", !v
			}
			if key, ok := flagKeys[f.Name]; ok {
				return key, posflag.FlagVal(opts.Flags, f)
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, errors.Wrap(err, "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, invalid(errors.Wrap(err, "decode config"), "check value types in the config file and environment")
	}
	cfg.File = opts.File
	cfg.Dataset = opts.Dataset
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.MatchProps = cleanList(c.MatchProps)
	c.CodeCandidates = cleanList(c.CodeCandidates)
	c.Languages = cleanList(c.Languages)
	if len(c.Languages) == 0 {
		if l := strings.TrimSpace(c.Language); l != "" {
			c.Languages = []string{l}
		} else {
			c.Languages = []string{DefaultLanguage}
		}
	}
	c.Language = c.Languages[0]
	c.UserAgent = strings.TrimSpace(c.UserAgent)
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.OutputColumn = strings.TrimSpace(c.OutputColumn)
	c.ExistingColumn = strings.TrimSpace(c.ExistingColumn)
	c.FeatureIDColumn = strings.TrimSpace(c.FeatureIDColumn)
	c.CoordsColumn = strings.TrimSpace(c.CoordsColumn)
}

// languageAlias rewrites a layer's single language key to the list form so it
// overrides languages set by lower layers.
func languageAlias(layer *koanf.Koanf) *koanf.Koanf {
	if layer.Exists("language") && !layer.Exists("languages") {
		_ = layer.Set("languages", []string{layer.String("language")})
	}
	layer.Delete("language")
	return layer
}

// listKeys are the keys whose environment values are comma separated.
var listKeys = map[string]bool{
	"wikidata_match_props": true,
	"code_candidates":      true,
	"languages":            true,
}

func envValue(name, value string) (string, interface{}) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if key == "language" {
		if _, ok := os.LookupEnv(EnvPrefix + "LANGUAGES"); ok {
			return "", nil
		}
		return "languages", []string{value}
	}
	if listKeys[key] {
		return key, strings.Split(value, ",")
	}
	return key, value
}

func flagStrings(f *pflag.Flag) []string {
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		return sv.GetSlice()
	}
	return []string{f.Value.String()}
}

// cleanList trims entries and drops blanks and duplicates, keeping order.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
