package sio

import (
	"github.com/Comcast/tuplescript/core"

	"github.com/goccy/go-json"
)

// Request is one input line of the stdio protocol.
//
//	{"op":"set","owner":101,"key":"odometry","value":{"atom":"on"}}
//	{"op":"set_meta","owner":102,"key":"mi-odometry","target_owner":101,"target_key":"odometry"}
//	{"op":"subscribe","owner":-1,"key":"components.*.reqState"}
type Request struct {
	// ID, if given, is echoed in the response.
	ID json.RawMessage `json:"id,omitempty"`

	Op    string      `json:"op"`
	Owner int         `json:"owner"`
	Key   string      `json:"key"`
	Value interface{} `json:"value,omitempty"`

	TargetOwner int    `json:"target_owner,omitempty"`
	TargetKey   string `json:"target_key,omitempty"`

	// Sub is the subscription for "unsubscribe".
	Sub uint64 `json:"sub,omitempty"`
}

// Response is one output line.  Exactly one of Result, Error, and
// Event is set.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	TS     string          `json:"ts,omitempty"`
	Result interface{}     `json:"result,omitempty"`
	Error  *core.Error     `json:"error,omitempty"`
	Sub    uint64          `json:"sub,omitempty"`
	Event  *Event          `json:"event,omitempty"`
}

// Event is the JSON form of a core.Event.
type Event struct {
	Kind    string      `json:"kind"`
	Seq     uint64      `json:"seq,omitempty"`
	Tuple   *core.Tuple `json:"tuple,omitempty"`
	Dropped int         `json:"dropped,omitempty"`
}

func NewEvent(ev core.Event) *Event {
	return &Event{
		Kind:    ev.Kind.String(),
		Seq:     ev.Seq,
		Tuple:   ev.Tuple,
		Dropped: ev.Dropped,
	}
}
