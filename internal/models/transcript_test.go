package models

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestDecodeBlocks_FullDocument(t *testing.T) {
	doc := `[
		{"heading":"Intro","timestamp":"00:00","body":[
			{"name":"Sara","role":"host","text":"Welcome"},
			{"role":"narrator","text":"Once upon a time"}
		]},
		{"heading":"Next","timestamp":95,"body":[]}
	]`

	blocks, ok := DecodeBlocks([]byte(doc))
	if !ok {
		t.Fatal("expected document to decode")
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Heading != "Intro" || blocks[0].Timestamp.String() != "00:00" {
		t.Errorf("unexpected first block: %+v", blocks[0])
	}
	if blocks[0].Body[0].Name != "Sara" || blocks[0].Body[1].Name != "" {
		t.Errorf("unexpected names: %+v", blocks[0].Body)
	}
	if secs, ok := blocks[1].Timestamp.Seconds(); !ok || secs != 95 {
		t.Errorf("expected numeric timestamp 95, got %v %v", secs, ok)
	}
	if blocks[1].Body == nil || len(blocks[1].Body) != 0 {
		t.Errorf("expected empty non-nil body, got %#v", blocks[1].Body)
	}
}

func TestDecodeBlocks_AbsorbsShapeDrift(t *testing.T) {
	doc := `[
		{"heading":42,"timestamp":{"x":1},"body":"oops"},
		"not an object",
		{"heading":"ok","body":[{"name":7,"role":"host","text":["a"]}, 5]}
	]`

	blocks, ok := DecodeBlocks([]byte(doc))
	if !ok {
		t.Fatal("drifted document should still decode")
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if blocks[0].Heading != "" || !blocks[0].Timestamp.IsZero() || blocks[0].Body != nil {
		t.Errorf("expected zero first block, got %+v", blocks[0])
	}
	if !reflect.DeepEqual(blocks[1], Block{}) {
		t.Errorf("expected empty block for non-object, got %+v", blocks[1])
	}
	want := []Utterance{{Role: "host"}, {}}
	if !reflect.DeepEqual(blocks[2].Body, want) {
		t.Errorf("body = %+v, want %+v", blocks[2].Body, want)
	}
}

func TestDecodeBlocks_NotAnArray(t *testing.T) {
	tests := []string{``, `{"heading":"x"}`, `"text"`, `null`, `[1,`}
	for _, in := range tests {
		if _, ok := DecodeBlocks([]byte(in)); ok {
			t.Errorf("DecodeBlocks(%q) should fail", in)
		}
	}
}

func TestBlock_RoundTripKeepsTimestampForm(t *testing.T) {
	blocks := []Block{
		{Heading: "a", Timestamp: SecondsTimestamp(12.5)},
		{Heading: "b", Timestamp: TextTimestamp("01:02")},
		{Heading: "c"},
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"heading":"a","timestamp":12.5,"body":null},` +
		`{"heading":"b","timestamp":"01:02","body":null},` +
		`{"heading":"c","timestamp":null,"body":null}]`
	if string(data) != want {
		t.Errorf("got %s\nwant %s", data, want)
	}
}

func TestUtterance_WordCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one", 1},
		{"  two   words ", 2},
		{"multi\nline text", 3},
	}
	for _, tt := range tests {
		if got := (Utterance{Text: tt.text}).WordCount(); got != tt.want {
			t.Errorf("WordCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
