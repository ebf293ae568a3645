// Package config provides configuration loading for a schemacore-backed
// file: which policy mode to reconcile under, what version the target
// schema is, and an optional declarative description of that target
// schema for callers who'd rather describe it in a file than in Go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arkiliandb/schemacore/internal/errkit"
	"github.com/arkiliandb/schemacore/pkg/schema"
)

// Config holds everything needed to open and reconcile a schemacore file.
type Config struct {
	// Path is the SQLite file path this configuration applies to.
	Path string `json:"path" yaml:"path"`

	// ModeName selects the reconciliation policy: "automatic" (default),
	// "readonly", "resetfile", "additive", or "manual". See schema.Mode.
	ModeName string `json:"mode" yaml:"mode"`

	// TargetSchemaVersion is the version UpdateSchema reconciles to.
	TargetSchemaVersion uint64 `json:"target_schema_version" yaml:"target_schema_version"`

	// ManualModeEnabled gates schema.Manual: the spec permits an
	// implementation to leave Manual mode unimplemented, so it's disabled
	// by default and must be opted into explicitly (see pkg/migrate).
	ManualModeEnabled bool `json:"manual_mode_enabled" yaml:"manual_mode_enabled"`

	// TargetSchema is an optional declarative description of the target
	// schema, for callers who prefer to keep it out of Go source. Either
	// this is populated or the caller builds a schema.Schema directly and
	// passes it to UpdateSchema.
	TargetSchema *SchemaFile `json:"target_schema" yaml:"target_schema"`
}

// SchemaFile is the declarative, file-friendly description of a
// schema.Schema: one entry per object type, one entry per property.
type SchemaFile struct {
	Objects []ObjectFile `json:"objects" yaml:"objects"`
}

// ObjectFile describes one object type.
type ObjectFile struct {
	Name       string         `json:"name" yaml:"name"`
	PrimaryKey string         `json:"primary_key" yaml:"primary_key"`
	Properties []PropertyFile `json:"properties" yaml:"properties"`
}

// PropertyFile describes one property. Type is the lowercase name of a
// schema.PropertyType ("int", "string", "object", ...).
type PropertyFile struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	ObjectType string `json:"object_type" yaml:"object_type"`
	LinkOrigin string `json:"link_origin_property" yaml:"link_origin_property"`
	Indexed    bool   `json:"indexed" yaml:"indexed"`
	Nullable   bool   `json:"nullable" yaml:"nullable"`
}

var propertyTypeNames = map[string]schema.PropertyType{
	"int":            schema.Int,
	"bool":           schema.Bool,
	"float":          schema.Float,
	"double":         schema.Double,
	"string":         schema.String,
	"data":           schema.Data,
	"date":           schema.Date,
	"any":            schema.Any,
	"object":         schema.Object,
	"array":          schema.Array,
	"linkingobjects": schema.LinkingObjects,
}

// ToSchema converts the declarative description into a schema.Schema.
func (f *SchemaFile) ToSchema() (schema.Schema, error) {
	objects := make([]schema.ObjectSchema, len(f.Objects))
	for i, o := range f.Objects {
		var persisted, computed []schema.Property
		for _, p := range o.Properties {
			t, ok := propertyTypeNames[strings.ToLower(p.Type)]
			if !ok {
				return schema.Schema{}, fmt.Errorf("config: object %q property %q: unknown type %q", o.Name, p.Name, p.Type)
			}
			prop := schema.Property{
				Name:               p.Name,
				Type:               t,
				ObjectType:         p.ObjectType,
				LinkOriginProperty: p.LinkOrigin,
				IsPrimary:          o.PrimaryKey == p.Name,
				IsIndexed:          p.Indexed,
				IsNullable:         p.Nullable,
			}
			if t == schema.LinkingObjects {
				computed = append(computed, prop)
			} else {
				persisted = append(persisted, prop)
			}
		}
		objects[i] = schema.ObjectSchema{
			Name:                o.Name,
			PersistedProperties: persisted,
			ComputedProperties:  computed,
			PrimaryKey:          o.PrimaryKey,
		}
	}
	return schema.New(objects...), nil
}

// DefaultConfig returns a Config with schema.Automatic mode, version 0,
// and Manual mode disabled.
func DefaultConfig() *Config {
	return &Config{
		ModeName:            "automatic",
		TargetSchemaVersion: 0,
		ManualModeEnabled:   false,
	}
}

// Mode resolves ModeName into a schema.Mode.
func (c *Config) Mode() (schema.Mode, error) {
	switch strings.ToLower(c.ModeName) {
	case "", "automatic":
		return schema.Automatic, nil
	case "readonly":
		return schema.ReadOnly, nil
	case "resetfile":
		return schema.ResetFile, nil
	case "additive":
		return schema.Additive, nil
	case "manual":
		return schema.Manual, nil
	default:
		return 0, fmt.Errorf("config: unknown mode %q", c.ModeName)
	}
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errkit.New(errkit.CategoryConfig, errkit.CodeConfigInvalid, "path is required")
	}
	mode, err := c.Mode()
	if err != nil {
		return errkit.Wrap(errkit.CategoryConfig, errkit.CodeConfigInvalid, "invalid mode", err)
	}
	if mode == schema.Manual && !c.ManualModeEnabled {
		return errkit.New(errkit.CategoryConfig, errkit.CodeConfigInvalid, "mode is manual but manual_mode_enabled is false")
	}
	return nil
}

// LoadFromFile loads a Config from a YAML or JSON file, starting from
// DefaultConfig so unset fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkit.Wrap(errkit.CategoryConfig, errkit.CodeConfigNotFound, "failed to read config file", err)
	}

	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errkit.Wrap(errkit.CategoryConfig, errkit.CodeConfigInvalid, "failed to parse YAML config", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errkit.Wrap(errkit.CategoryConfig, errkit.CodeConfigInvalid, "failed to parse JSON config", err)
		}
	default:
		return nil, errkit.New(errkit.CategoryConfig, errkit.CodeConfigInvalid, fmt.Sprintf("unsupported config file format: %s", ext))
	}
	return cfg, nil
}

// LoadFromEnv overlays environment variables on top of cfg. Recognized
// variables are prefixed SCHEMACORE_.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SCHEMACORE_PATH"); v != "" {
		cfg.Path = v
	}
	if v := os.Getenv("SCHEMACORE_MODE"); v != "" {
		cfg.ModeName = v
	}
	if v := os.Getenv("SCHEMACORE_TARGET_SCHEMA_VERSION"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.TargetSchemaVersion = n
		}
	}
	if v := os.Getenv("SCHEMACORE_MANUAL_MODE_ENABLED"); v != "" {
		cfg.ManualModeEnabled = v == "true" || v == "1"
	}
}
