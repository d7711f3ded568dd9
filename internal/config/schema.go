package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const schemaURL = "minigames.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, strings.NewReader(configSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// validateSchema checks the raw YAML document shape before it is decoded
// into Config, so typos in keys and negative magnitudes are reported with
// their document path.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid config yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config yaml is not json-compatible: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return err
	}
	s, err := loadSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	if err := s.Validate(normalized); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return nil
}

const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "nonneg": { "type": "number", "minimum": 0 },
    "plannerTask": {
      "type": "object",
      "additionalProperties": false,
      "required": ["id", "duration"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "title": { "type": "string" },
        "duration": { "$ref": "#/definitions/nonneg" },
        "relevance": { "type": "number", "minimum": 0, "maximum": 3 }
      }
    },
    "trayItem": {
      "type": "object",
      "additionalProperties": false,
      "required": ["id", "size"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "title": { "type": "string" },
        "size": { "$ref": "#/definitions/nonneg" },
        "height": { "type": "integer", "minimum": 0 },
        "weight": { "$ref": "#/definitions/nonneg" },
        "value": { "$ref": "#/definitions/nonneg" },
        "shape": { "type": "string" },
        "material": { "type": "string" }
      }
    }
  },
  "properties": {
    "planner": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "time_scale": { "$ref": "#/definitions/nonneg" },
        "max_tick_ms": { "type": "integer", "minimum": 0 },
        "epsilon": { "$ref": "#/definitions/nonneg" },
        "auto_advance_seconds": { "$ref": "#/definitions/nonneg" },
        "rounds": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "id": { "type": "integer", "minimum": 0 },
              "label": { "type": "string" },
              "day_length_hours": { "$ref": "#/definitions/nonneg" },
              "tasks": { "type": ["array", "null"], "items": { "$ref": "#/definitions/plannerTask" } }
            }
          }
        }
      }
    },
    "tray": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "slot_limit": { "$ref": "#/definitions/nonneg" },
        "max_weight": { "$ref": "#/definitions/nonneg" },
        "target_distance": { "$ref": "#/definitions/nonneg" },
        "time_scale": { "$ref": "#/definitions/nonneg" },
        "max_tick_ms": { "type": "integer", "minimum": 0 },
        "auto_advance_seconds": { "$ref": "#/definitions/nonneg" },
        "speed": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "mode": { "enum": ["weighted", "fixed"] },
            "base": { "$ref": "#/definitions/nonneg" },
            "min": { "$ref": "#/definitions/nonneg" },
            "weight_penalty": { "$ref": "#/definitions/nonneg" },
            "max_weight_influence": { "$ref": "#/definitions/nonneg" },
            "sprint_multiplier": { "$ref": "#/definitions/nonneg" }
          }
        },
        "generator": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "seed": { "type": "integer" },
            "min_items": { "type": "integer", "minimum": 0 },
            "max_items": { "type": "integer", "minimum": 0 },
            "max_size": { "type": "integer", "minimum": 1 },
            "max_height": { "type": "integer", "minimum": 1 },
            "max_weight": { "$ref": "#/definitions/nonneg" },
            "max_value": { "$ref": "#/definitions/nonneg" }
          }
        },
        "rounds": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "id": { "type": "integer", "minimum": 0 },
              "label": { "type": "string" },
              "slot_limit": { "$ref": "#/definitions/nonneg" },
              "max_weight": { "$ref": "#/definitions/nonneg" },
              "items": { "type": ["array", "null"], "items": { "$ref": "#/definitions/trayItem" } }
            }
          }
        }
      }
    },
    "server": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "frame_rate_hz": { "type": "integer", "minimum": 0, "maximum": 240 },
        "commands_per_second": { "$ref": "#/definitions/nonneg" },
        "command_burst": { "type": "integer", "minimum": 0 },
        "session_idle_minutes": { "type": "integer", "minimum": 0 }
      }
    },
    "webhooks": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["url"],
        "properties": {
          "url": { "type": "string", "minLength": 1 },
          "events": { "type": "array", "items": { "type": "string" } },
          "secret": { "type": "string" },
          "timeout_seconds": { "type": "integer", "minimum": 0 },
          "enabled": { "type": "boolean" }
        }
      }
    }
  }
}`
