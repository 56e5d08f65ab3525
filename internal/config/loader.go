package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// runConfigSchema structurally validates a run configuration before it is
// decoded, so typos and wrong types surface with field paths instead of
// half-applied settings.
const runConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "workload": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "rate": {"type": "number", "exclusiveMinimum": 0},
        "operationLatency": {"$ref": "#/$defs/duration"},
        "workers": {"type": "integer", "minimum": 1}
      }
    },
    "histogram": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "lowest": {"$ref": "#/$defs/duration"},
        "highest": {"$ref": "#/$defs/duration"},
        "significantDigits": {"type": "integer", "minimum": 1, "maximum": 5}
      }
    },
    "estimator": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "window": {"type": "integer", "minimum": 2},
        "timeCap": {"$ref": "#/$defs/duration"}
      }
    },
    "detector": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "sleepInterval": {"$ref": "#/$defs/duration"},
        "threshold": {"$ref": "#/$defs/duration"},
        "threads": {"type": "integer", "minimum": 1, "maximum": 64},
        "spin": {"type": "boolean"}
      }
    },
    "report": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "interval": {"$ref": "#/$defs/duration"}
      }
    }
  },
  "$defs": {
    "duration": {
      "type": "string",
      "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("runconfig.json", runConfigSchema)

// Load reads a YAML run configuration from path, validates it against the
// embedded schema plus semantic checks, and overlays it on the defaults.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes a YAML run configuration overlaid on the
// defaults.
func Parse(data []byte) (*RunConfig, error) {
	// Schema validation happens on the generic YAML tree; yaml.v3
	// produces string-keyed maps the validator accepts directly.
	var tree interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if tree != nil {
		if err := compiledSchema.Validate(tree); err != nil {
			return nil, fmt.Errorf("config does not match schema: %w", err)
		}
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
