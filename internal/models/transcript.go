// Package models defines the transcript data structures rendered from the
// upstream streams.
package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Block is one titled, timestamp-anchored section of a transcript.
type Block struct {
	Heading   string      `json:"heading"`
	Timestamp Timestamp   `json:"timestamp"`
	Body      []Utterance `json:"body"`
}

// Utterance is one speaker turn within a Block.
type Utterance struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
	Text string `json:"text"`
}

// WordCount returns the number of whitespace-separated words in the text.
func (u Utterance) WordCount() int {
	return len(strings.Fields(u.Text))
}

// UnmarshalJSON decodes a block field by field. A field whose JSON type does
// not match is left at its zero value instead of failing the document, and
// a non-object value decodes to an empty block.
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*b = Block{}
		return nil
	}

	var out Block
	decodeField(raw, "heading", &out.Heading)
	if v, ok := raw["timestamp"]; ok {
		_ = out.Timestamp.UnmarshalJSON(v)
	}
	if v, ok := raw["body"]; ok {
		var items []json.RawMessage
		if json.Unmarshal(v, &items) == nil && items != nil {
			out.Body = make([]Utterance, len(items))
			for i, item := range items {
				_ = out.Body[i].UnmarshalJSON(item)
			}
		}
	}
	*b = out
	return nil
}

// UnmarshalJSON decodes an utterance with the same tolerance as Block.
func (u *Utterance) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*u = Utterance{}
		return nil
	}

	var out Utterance
	decodeField(raw, "name", &out.Name)
	decodeField(raw, "role", &out.Role)
	decodeField(raw, "text", &out.Text)
	*u = out
	return nil
}

// DecodeBlocks decodes a complete or repaired transcript document. Anything
// other than an array decodes to no blocks.
func DecodeBlocks(data []byte) ([]Block, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, false
	}
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, false
	}
	if blocks == nil {
		blocks = []Block{}
	}
	return blocks, true
}

func decodeField(raw map[string]json.RawMessage, key string, dst *string) {
	v, ok := raw[key]
	if !ok {
		return
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		*dst = s
	}
}
