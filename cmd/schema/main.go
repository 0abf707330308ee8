package main

import (
	"ctchen222/presence-relay/internal/player"
	"ctchen222/presence-relay/pkg/proto"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"
)

// inboundPayloads maps each client event type to the payload it carries.
var inboundPayloads = map[string]any{
	proto.TypeJoinArea:          proto.JoinArea{},
	proto.TypeIdentify:          player.Identity{},
	proto.TypePlayerStateUpdate: player.RuntimeUpdate{},
	proto.TypeAreaChange:        proto.AreaChange{},
	proto.TypeEquipmentChange:   proto.EquipmentChange{},
	proto.TypeChatMessage:       proto.ChatMessage{},
	proto.TypeTradeRequest:      proto.TradeRequest{},
	proto.TypeTradeUpdate:       proto.TradeUpdate{},
	proto.TypeDisconnect:        proto.Disconnect{},
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}

	defs := make(jsonschema.Definitions, len(inboundPayloads))
	for eventType, payload := range inboundPayloads {
		schema := reflector.ReflectFromType(reflect.TypeOf(payload))
		schema.Version = ""
		schema.Title = eventType
		defs[eventType] = schema
	}

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Presence Relay Client Events",
		Description: "Payloads accepted in the payload field of an inbound {type, payload} frame, keyed by type.",
		Definitions: defs,
	}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	return os.Rename(tmpPath, outPath)
}
