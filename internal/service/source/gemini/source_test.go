package gemini

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	chunks []string
	err    error
	failAt int

	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.model = model
	f.contents = contents
	f.config = config
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for i, chunk := range f.chunks {
			if f.err != nil && i == f.failAt {
				yield(nil, f.err)
				return
			}
			if !yield(textResponse(chunk), nil) {
				return
			}
		}
		if f.err != nil && f.failAt >= len(f.chunks) {
			yield(nil, f.err)
		}
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestTranscript_RequestShape(t *testing.T) {
	fake := &fakeModels{chunks: []string{`[{"heading":"Intro`, `"}]`}}
	c := newClient(fake, DefaultPrompts())

	rc, err := c.Transcript().Open(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `[{"heading":"Intro"}]`, string(data))

	assert.Equal(t, DefaultPrompts().Transcript.Model, fake.model)
	require.Len(t, fake.contents, 1)
	require.Len(t, fake.contents[0].Parts, 1)
	fd := fake.contents[0].Parts[0].FileData
	require.NotNil(t, fd)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", fd.FileURI)
	assert.Equal(t, "video/*", fd.MIMEType)

	assert.Equal(t, "application/json", fake.config.ResponseMIMEType)
	require.NotNil(t, fake.config.ResponseSchema)
	assert.Equal(t, genai.TypeArray, fake.config.ResponseSchema.Type)
	assert.Equal(t, []string{"heading", "timestamp", "body"}, fake.config.ResponseSchema.Items.PropertyOrdering)
	require.NotNil(t, fake.config.SystemInstruction)
}

func TestSummary_PlainText(t *testing.T) {
	fake := &fakeModels{chunks: []string{"Hel", "", "lo wor", "ld"}}
	c := newClient(fake, DefaultPrompts())

	rc, err := c.Summary().Open(context.Background(), "v")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", string(data))
	assert.Equal(t, "text/plain", fake.config.ResponseMIMEType)
	assert.Nil(t, fake.config.ResponseSchema)
}

func TestOpen_FirstResponseErrorFailsOpen(t *testing.T) {
	want := errors.New("permission denied")
	fake := &fakeModels{chunks: []string{"never"}, err: want, failAt: 0}
	c := newClient(fake, DefaultPrompts())

	_, err := c.Summary().Open(context.Background(), "v")
	require.Error(t, err)
	assert.ErrorIs(t, err, want)
}

func TestOpen_MidStreamErrorFailsRead(t *testing.T) {
	want := errors.New("stream reset")
	fake := &fakeModels{chunks: []string{"a", "b", "c"}, err: want, failAt: 2}
	c := newClient(fake, DefaultPrompts())

	rc, err := c.Summary().Open(context.Background(), "v")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	assert.ErrorIs(t, err, want)
	assert.Equal(t, "ab", string(data))
}

func TestOpen_EmptyStream(t *testing.T) {
	c := newClient(&fakeModels{}, DefaultPrompts())

	rc, err := c.Summary().Open(context.Background(), "v")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLoadPrompts(t *testing.T) {
	p, err := LoadPrompts("")
	require.NoError(t, err)
	assert.NotEmpty(t, p.Transcript.Instructions)
	assert.NotEmpty(t, p.Summary.Instructions)

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("summary:\n  model: custom-model\n"), 0o600))

	p, err = LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", p.Summary.Model)
	assert.Equal(t, DefaultPrompts().Transcript.Model, p.Transcript.Model)

	_, err = LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParsePrompts_RequiresModels(t *testing.T) {
	_, err := ParsePrompts([]byte("transcript:\n  instructions: hi\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcript.model")
	assert.Contains(t, err.Error(), "summary.model")
}

func TestOpen_CanonicalizesShortLinks(t *testing.T) {
	fake := &fakeModels{chunks: []string{"Hello"}}
	c := newClient(fake, DefaultPrompts())

	rc, err := c.Summary().Open(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	_, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	require.Len(t, fake.contents, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", fake.contents[0].Parts[0].FileData.FileURI)
}
