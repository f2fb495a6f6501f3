package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://spawnlimiter.ai/schemas/"

var schemaFiles = map[string]string{
	TypeHello:    "hello.schema.json",
	TypeWelcome:  "welcome.schema.json",
	TypeChunk:    "chunk.schema.json",
	TypeSpawn:    "spawn.schema.json",
	TypeInspect:  "inspect.schema.json",
	TypeDecision: "decision.schema.json",
	TypeError:    "error.schema.json",
}

var schemas = mustCompileSchemas()

func mustCompileSchemas() map[string]*jsonschema.Schema {
	c := jsonschema.NewCompiler()
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		panic(err)
	}
	for _, e := range entries {
		b, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			panic(err)
		}
		if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(b)); err != nil {
			panic(eris.Wrapf(err, "schema %s", e.Name()))
		}
	}
	out := make(map[string]*jsonschema.Schema, len(schemaFiles))
	for typ, name := range schemaFiles {
		out[typ] = c.MustCompile(schemaBase + name)
	}
	return out
}

// Validate checks raw against the schema registered for msgType.
func Validate(msgType string, raw []byte) error {
	s, ok := schemas[msgType]
	if !ok {
		return eris.Errorf("no schema for message type %q", msgType)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return eris.Wrap(err, "decode")
	}
	if err := s.Validate(doc); err != nil {
		return eris.New(compactSchemaError(err))
	}
	return nil
}

// compactSchemaError keeps the innermost cause of a validation failure, which
// is the line a host developer can act on.
func compactSchemaError(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return strings.TrimSpace(loc + ": " + ve.Message)
}

// Decode validates raw and unmarshals it into v.
func Decode(msgType string, raw []byte, v any) error {
	if err := Validate(msgType, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return eris.Wrap(err, "unmarshal")
	}
	return nil
}
