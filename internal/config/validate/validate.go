package validate

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

//go:embed schema/*.json
var schemaFS embed.FS

const (
	TapManifestSchema = "tap-manifest.schema.json"
	ConfigSchema      = "config.schema.json"
)

// ValidateAgainstSchema compiles schema under name and validates the JSON
// document data against it. ref optionally selects a sub-schema, e.g.
// "#/definitions/release".
func ValidateAgainstSchema(name string, schema []byte, data []byte, ref string) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(name, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("loading schema %s: %w", name, err)
	}

	sch, err := compiler.Compile(name + ref)
	if err != nil {
		return fmt.Errorf("compiling schema %s: %w", name, err)
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := sch.Validate(doc); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("schema validation failed:\n%s", formatValidationError(ve))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidateTapManifestJSON validates a tap manifest already in JSON form.
func ValidateTapManifestJSON(data []byte) error {
	return validateEmbedded(TapManifestSchema, data, "")
}

// ValidateTapManifestYAML converts a YAML tap manifest to JSON and validates it.
func ValidateTapManifestYAML(data []byte) error {
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting manifest YAML: %w", err)
	}
	return ValidateTapManifestJSON(js)
}

// ValidateReleaseJSON validates a single release entry of a tap manifest.
func ValidateReleaseJSON(data []byte) error {
	return validateEmbedded(TapManifestSchema, data, "#/definitions/release")
}

// ValidateConfigJSON validates the tool configuration in JSON form.
func ValidateConfigJSON(data []byte) error {
	return validateEmbedded(ConfigSchema, data, "")
}

// ValidateConfigYAML converts a YAML configuration to JSON and validates it.
// An empty document is valid.
func ValidateConfigYAML(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting config YAML: %w", err)
	}
	if bytes.Equal(bytes.TrimSpace(js), []byte("null")) {
		return nil
	}
	return ValidateConfigJSON(js)
}

func validateEmbedded(name string, data []byte, ref string) error {
	schema, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return fmt.Errorf("reading embedded schema %s: %w", name, err)
	}
	return ValidateAgainstSchema(name, schema, data, ref)
}

func formatValidationError(ve *jsonschema.ValidationError) string {
	var b strings.Builder
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			fmt.Fprintf(&b, "  - %s: %s\n", loc, e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.TrimRight(b.String(), "\n")
}
