package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://worldsmith.dev/schemas/"

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

// schemaOwner is implemented by every packet type in this package.
type schemaOwner interface {
	schemaName() string
}

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		entries, err := schemaFS.ReadDir("schemas")
		if err != nil {
			schemasErr = err
			return
		}
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			b, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(schemaBaseURL+e.Name(), bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("schema %s: %w", e.Name(), err)
				return
			}
			names = append(names, e.Name())
		}
		out := make(map[string]*jsonschema.Schema, len(names))
		for _, n := range names {
			s, err := c.Compile(schemaBaseURL + n)
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", n, err)
				return
			}
			out[strings.TrimSuffix(n, ".schema.json")] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

func schemaFor(name string) *jsonschema.Schema {
	m, err := loadSchemas()
	if err != nil {
		// Schemas are embedded at build time; failing here is a broken build.
		panic(fmt.Sprintf("protocol: load schemas: %v", err))
	}
	s, ok := m[name]
	if !ok {
		panic(fmt.Sprintf("protocol: no schema named %q", name))
	}
	return s
}

// Deserialize builds a T from an untyped JSON value (as produced by
// json.Unmarshal into any). It is all-or-nothing: when any required field is
// missing or has the wrong JSON type it returns (zero, false), never an error.
func Deserialize[T Packet](raw any) (T, bool) {
	var zero T
	owner, ok := any(zero).(schemaOwner)
	if !ok {
		return zero, false
	}
	if _, isObj := raw.(map[string]any); !isObj {
		return zero, false
	}
	if err := schemaFor(owner.schemaName()).Validate(raw); err != nil {
		return zero, false
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, false
	}
	return out, true
}

// Variant is one candidate shape a decoder may try.
type Variant struct {
	Name        string
	Kind        Kind
	Deserialize func(raw any) (Packet, bool)
}

func VariantOf[T Packet]() Variant {
	var zero T
	return Variant{
		Name: strings.TrimPrefix(fmt.Sprintf("%T", zero), "protocol."),
		Kind: zero.Kind(),
		Deserialize: func(raw any) (Packet, bool) {
			p, ok := Deserialize[T](raw)
			if !ok {
				return nil, false
			}
			return p, true
		},
	}
}
