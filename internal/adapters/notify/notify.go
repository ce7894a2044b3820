// Package notify pushes assessment status transitions to subscribers.
// Polling stays the contract; pushes are best effort.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/kaushal/internal/domain/model"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec names.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Event is one status transition.
type Event = model.StatusEvent

// Notifier publishes transitions.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
func (Nop) Close() error                        { return nil }

// Codec encodes and decodes events.
type Codec interface {
	Encode(ev Event) ([]byte, error)
	Decode(b []byte) (Event, error)
}

type jsonCodec struct{}

func (jsonCodec) Encode(ev Event) ([]byte, error) { return json.Marshal(ev) }
func (jsonCodec) Decode(b []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(b, &ev)
	return ev, err
}

type msgpackCodec struct{}

func (msgpackCodec) Encode(ev Event) ([]byte, error) { return msgpack.Marshal(ev) }
func (msgpackCodec) Decode(b []byte) (Event, error) {
	var ev Event
	err := msgpack.Unmarshal(b, &ev)
	return ev, err
}

// CodecFor returns the codec registered under name.
func CodecFor(name string) (Codec, error) {
	switch name {
	case CodecJSON, "":
		return jsonCodec{}, nil
	case CodecMsgpack:
		return msgpackCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// Topic is <prefix>/assessments/<id>/status.
func Topic(prefix, assessmentID string) string {
	return prefix + "/assessments/" + assessmentID + "/status"
}
