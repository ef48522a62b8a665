package observerproto

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBase = "https://agentarena.ai/schemas/"

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemaOnce   sync.Once
	clientSchema *jsonschema.Schema
	actionSchema *jsonschema.Schema
	schemaErr    error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	for _, name := range []string{"action.schema.json", "client.schema.json"} {
		url := schemaBase + name
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemaErr = err
			return
		}
		if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add %s: %w", name, err)
			return
		}
	}
	if clientSchema, schemaErr = c.Compile(schemaBase + "client.schema.json"); schemaErr != nil {
		return
	}
	actionSchema, schemaErr = c.Compile(schemaBase + "action.schema.json")
}

func validate(pick func() *jsonschema.Schema, raw []byte) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return pick().Validate(v)
}

// ValidateClient checks one inbound listener message.
func ValidateClient(raw []byte) error {
	return validate(func() *jsonschema.Schema { return clientSchema }, raw)
}

// ValidateAction checks a bare action request object.
func ValidateAction(raw []byte) error {
	return validate(func() *jsonschema.Schema { return actionSchema }, raw)
}
