package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType discriminates the envelope kinds.
type MessageType int

const (
	TypeCommand MessageType = 1
	TypeEvent   MessageType = 2
	TypeResult  MessageType = 3
	TypeWebview MessageType = 4
)

// Outbound reuses the first three type values with different meanings.
const (
	TypeExec      MessageType = 1
	TypeThenable  MessageType = 2
	TypeImmediate MessageType = 3
)

var (
	// ErrMalformed is returned when a frame is not a JSON object with a numeric type.
	ErrMalformed = errors.New("protocol: malformed envelope")

	// ErrUnknownType is returned for a well-formed frame whose type is not 1..4.
	ErrUnknownType = errors.New("protocol: unknown envelope type")
)

// Envelope is the raw wire shape of every frame in both directions.
type Envelope struct {
	Type  MessageType     `json:"type"`
	Name  string          `json:"name,omitempty"`
	Event string          `json:"event,omitempty"`
	Code  string          `json:"code,omitempty"`
	ID    string          `json:"id,omitempty"`
	UUID  string          `json:"uuid,omitempty"`
	Res   json.RawMessage `json:"res,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is implemented by every decoded host -> bridge message.
type Inbound interface {
	Kind() MessageType
}

// CommandInvocation asks the bridge to run a registered command.
type CommandInvocation struct {
	Name string
}

// EventInvocation asks the bridge to run a registered event handler.
type EventInvocation struct {
	Event string
	Data  json.RawMessage
}

// EvalResponse carries the host's result for a correlated evaluation.
type EvalResponse struct {
	ID  string
	Res json.RawMessage
}

// WebviewEvent is raised by a host-side webview panel.
type WebviewEvent struct {
	ID   string
	Name string
	Data json.RawMessage
}

func (CommandInvocation) Kind() MessageType { return TypeCommand }
func (EventInvocation) Kind() MessageType   { return TypeEvent }
func (EvalResponse) Kind() MessageType      { return TypeResult }
func (WebviewEvent) Kind() MessageType      { return TypeWebview }

// Null is the result recorded when the host replies without a value.
var Null = json.RawMessage("null")

// Decode parses one inbound frame.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeCommand:
		return CommandInvocation{Name: env.Name}, nil
	case TypeEvent:
		return EventInvocation{Event: env.Event, Data: optional(env.Data)}, nil
	case TypeResult:
		id := env.ID
		if id == "" {
			id = env.UUID
		}
		res := env.Res
		if len(res) == 0 {
			res = Null
		}
		return EvalResponse{ID: id, Res: res}, nil
	case TypeWebview:
		return WebviewEvent{ID: env.ID, Name: env.Name, Data: optional(env.Data)}, nil
	case 0:
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, env.Type)
	}
}

func optional(data json.RawMessage) json.RawMessage {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return data
}

// ExecMessage builds a fire-and-forget frame.
func ExecMessage(code string) Envelope {
	return Envelope{Type: TypeExec, Code: code}
}

// ThenableMessage builds a frame the host must await before replying.
func ThenableMessage(code, id string) Envelope {
	return Envelope{Type: TypeThenable, Code: code, ID: id}
}

// ImmediateMessage builds a frame the host evaluates synchronously before replying.
func ImmediateMessage(code, id string) Envelope {
	return Envelope{Type: TypeImmediate, Code: code, ID: id}
}

// Encode serializes an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
