// Package memory models conversation memory as an immutable ordered list of
// turns. The answering engine returns a new value after every exchange;
// callers keep continuity only by handing the returned value back on the
// next call, which rules out accidental aliasing between conversations.
package memory

import (
	"encoding/json"
	"strings"
)

// Turn roles. Only these two appear in memory; system instructions live in
// the settings store, not in conversation memory.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single conversation turn.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Buffer is an ordered sequence of turns. The zero value is an empty,
// usable memory. Buffer values are treated as immutable: Append returns a
// new Buffer and never mutates the receiver's backing storage.
type Buffer struct {
	turns []Turn
}

// New returns an empty memory.
func New() Buffer {
	return Buffer{}
}

// Append returns a new Buffer with the user/assistant pair added.
func (b Buffer) Append(userTurn, assistantTurn string) Buffer {
	turns := make([]Turn, 0, len(b.turns)+2)
	turns = append(turns, b.turns...)
	turns = append(turns,
		Turn{Role: RoleUser, Content: userTurn},
		Turn{Role: RoleAssistant, Content: assistantTurn},
	)
	return Buffer{turns: turns}
}

// Turns returns a copy of the turns in order.
func (b Buffer) Turns() []Turn {
	out := make([]Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

// Len returns the number of turns.
func (b Buffer) Len() int { return len(b.turns) }

// Render formats the turns for the prompt's history section, one line per
// turn, in order:
//
//	Human: how are you?
//	AI: fine, thanks
func (b Buffer) Render() string {
	var sb strings.Builder
	for i, t := range b.turns {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch t.Role {
		case RoleAssistant:
			sb.WriteString("AI: ")
		default:
			sb.WriteString("Human: ")
		}
		sb.WriteString(t.Content)
	}
	return sb.String()
}

// MarshalJSON encodes the buffer as a plain turn array so the HTTP boundary
// can hand it to clients as an opaque handle.
func (b Buffer) MarshalJSON() ([]byte, error) {
	if b.turns == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b.turns)
}

// UnmarshalJSON decodes a turn array produced by MarshalJSON.
func (b *Buffer) UnmarshalJSON(data []byte) error {
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return err
	}
	b.turns = turns
	return nil
}

// Decode parses an opaque handle previously produced by MarshalJSON. A
// malformed or empty handle yields a fresh empty memory rather than an
// error: an unrecognized handle means the caller has no usable history, and
// failing the whole request over it would help nobody.
func Decode(raw []byte) Buffer {
	if len(raw) == 0 {
		return Buffer{}
	}
	var b Buffer
	if err := json.Unmarshal(raw, &b); err != nil {
		return Buffer{}
	}
	return b
}
