package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/dagwatch/dagwatch/src/dag"
	"github.com/ugorji/go/codec"
)

// Event is a vertex notice received from the feed.
type Event struct {
	// ID is the hex identifier of the vertex.
	ID string `codec:"id"`

	// A is only checked for presence. An event without it is a deletion
	// notice for ID.
	A interface{} `codec:"a"`

	// hasA records that the frame carried an "a" key, including "a": null.
	hasA bool

	// I is the opaque vertex payload.
	I interface{} `codec:"i"`

	SeqID   string `codec:"seqid,omitempty"`
	SeqIdx  *int   `codec:"seqidx,omitempty"`
	StemIdx *int   `codec:"stemidx,omitempty"`

	// In lists the input identifiers in input order.
	In []string `codec:"in"`

	// Endorse lists the endorsed vertex identifiers.
	Endorse []string `codec:"endorse,omitempty"`

	// Raw is the frame the event was decoded from.
	Raw []byte `codec:"-"`
}

// ErrInvalidJSON is returned for frames that are not exactly one JSON value.
var ErrInvalidJSON = errors.New("frame is not a single valid JSON value")

func newJSONHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return jh
}

// Decode parses a JSON frame into an Event. The frame must be exactly one
// JSON value, since it is kept as Raw and re-emitted verbatim in views.
func Decode(data []byte) (*Event, error) {
	// the codec stops after the first value and ignores what follows
	if !json.Valid(data) {
		return nil, ErrInvalidJSON
	}

	jh := newJSONHandle()

	ev := &Event{}
	if err := codec.NewDecoder(bytes.NewReader(data), jh).Decode(ev); err != nil {
		return nil, err
	}

	if ev.ID == "" {
		return nil, errors.New("event without id")
	}

	keys := map[string]interface{}{}
	if err := codec.NewDecoder(bytes.NewReader(data), jh).Decode(&keys); err != nil {
		return nil, err
	}
	_, ev.hasA = keys["a"]

	ev.Raw = data

	return ev, nil
}

// IsDeletion reports whether the event removes vertex ID rather than
// inserting it: the frame had no "a" key. An explicit "a": null is an
// insertion.
func (e *Event) IsDeletion() bool {
	return !e.hasA && e.A == nil
}

// Kind derives the vertex kind: a stem index makes a Branch, otherwise a
// sequencer index or id makes a Sequencer.
func (e *Event) Kind() dag.Kind {
	switch {
	case e.StemIdx != nil:
		return dag.Branch
	case e.SeqIdx != nil || e.SeqID != "":
		return dag.Sequencer
	default:
		return dag.Regular
	}
}

// Roles resolves the role of every input, by position. The input at position
// seqidx is the sequencer predecessor, the input at position stemidx is the
// stem predecessor, all others are plain inputs.
func (e *Event) Roles() []dag.EdgeType {
	roles := make([]dag.EdgeType, len(e.In))

	for idx := range e.In {
		switch {
		case e.SeqIdx != nil && *e.SeqIdx == idx:
			roles[idx] = dag.SeqPredecessor
		case e.StemIdx != nil && *e.StemIdx == idx:
			roles[idx] = dag.StemPredecessor
		default:
			roles[idx] = dag.Input
		}
	}

	return roles
}
