package dag

import "fmt"

// Kind is the type of a vertex, derived once when the vertex is created.
type Kind uint8

const (
	// Regular is an ordinary transaction
	Regular Kind = iota
	// Sequencer is a transaction produced by a sequencer
	Sequencer
	// Branch is a sequencer transaction starting a new branch
	Branch
)

// String ...
func (k Kind) String() string {
	switch k {
	case Regular:
		return "regular"
	case Sequencer:
		return "sequencer"
	case Branch:
		return "branch"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	if k > Branch {
		return nil, fmt.Errorf("invalid vertex kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	for c := Regular; c <= Branch; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown vertex kind %q", text)
}

// EdgeType is the role of a predecessor with respect to the vertex it links
// to.
type EdgeType uint8

const (
	// Input is an ordinary consumed input
	Input EdgeType = iota
	// SeqPredecessor is the input continuing the sequencer chain
	SeqPredecessor
	// StemPredecessor is the input continuing the branch lineage
	StemPredecessor
	// Endorsement is a cross-reference which is not a dependency
	Endorsement
)

// String ...
func (t EdgeType) String() string {
	switch t {
	case Input:
		return "input"
	case SeqPredecessor:
		return "seqpred"
	case StemPredecessor:
		return "stempred"
	case Endorsement:
		return "endorse"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (t EdgeType) MarshalText() ([]byte, error) {
	if t > Endorsement {
		return nil, fmt.Errorf("invalid edge type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *EdgeType) UnmarshalText(text []byte) error {
	for c := Input; c <= Endorsement; c++ {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown edge type %q", text)
}

// Edge is a directed link from Source to Target.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
}
