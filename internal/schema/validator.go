// Package schema checks completed transcripts against the block schema.
//
// Validation is diagnostic only. The transcript model is permissive and a
// drifted document is still rendered; the issues found here are logged and
// counted so drift in the upstream model's output is visible.
package schema

import (
	"fmt"

	"ai-video-digest-service/internal/models"
)

// Issue is one schema violation.
type Issue struct {
	Block     int    // block index
	Utterance int    // utterance index, -1 for block-level issues
	Field     string // offending field
	Message   string
}

func (i Issue) String() string {
	if i.Utterance < 0 {
		return fmt.Sprintf("blocks[%d].%s: %s", i.Block, i.Field, i.Message)
	}
	return fmt.Sprintf("blocks[%d].body[%d].%s: %s", i.Block, i.Utterance, i.Field, i.Message)
}

// Validator checks transcripts.
type Validator struct {
	// RequireNames reports utterances without a speaker name.
	RequireNames bool
}

// New creates a validator with the default rules.
func New() *Validator {
	return &Validator{}
}

// Validate returns every issue found in blocks, in document order.
func (v *Validator) Validate(blocks []models.Block) []Issue {
	var issues []Issue
	add := func(b, u int, field, msg string) {
		issues = append(issues, Issue{Block: b, Utterance: u, Field: field, Message: msg})
	}

	last := -1.0
	for bi, b := range blocks {
		if b.Heading == "" {
			add(bi, -1, "heading", "missing")
		}

		switch secs, ok := b.Timestamp.Seconds(); {
		case b.Timestamp.IsZero():
			add(bi, -1, "timestamp", "missing")
		case !ok:
			add(bi, -1, "timestamp", fmt.Sprintf("unparseable %q", b.Timestamp.String()))
		case secs < last:
			add(bi, -1, "timestamp", fmt.Sprintf("%s is earlier than the previous block", b.Timestamp.String()))
		default:
			last = secs
		}

		if len(b.Body) == 0 {
			add(bi, -1, "body", "empty")
		}
		for ui, u := range b.Body {
			if u.Role == "" {
				add(bi, ui, "role", "missing")
			}
			if u.Text == "" {
				add(bi, ui, "text", "missing")
			}
			if v.RequireNames && u.Name == "" {
				add(bi, ui, "name", "missing")
			}
		}
	}
	return issues
}
