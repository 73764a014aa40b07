// Package gemini streams transcripts and summaries from the Gemini API.
//
// The video is passed to the model by URI and the response is streamed with
// GenerateContentStream. The transcript request carries a JSON response
// schema so the accumulated text is a JSON array of blocks. The summary
// request asks for plain text.
package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"ai-video-digest-service/internal/observability/logging"
	"ai-video-digest-service/internal/observability/metrics"
	"ai-video-digest-service/internal/service/source"
	"ai-video-digest-service/internal/youtube"
)

const (
	provider      = "gemini"
	videoMIMEType = "video/*"
)

// Config configures the Gemini client.
type Config struct {
	APIKey      string
	PromptsPath string
}

// streamer is the part of *genai.Models the sources use.
type streamer interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Client holds a Gemini API client and the prompts for both streams.
type Client struct {
	models  streamer
	prompts Prompts
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a Gemini client. It does not contact the API.
func New(ctx context.Context, cfg Config) (*Client, error) {
	prompts, err := LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, err
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newClient(c.Models, prompts), nil
}

func newClient(models streamer, prompts Prompts) *Client {
	return &Client{
		models:  models,
		prompts: prompts,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("gemini"),
	}
}

// Transcript returns the transcript source.
func (c *Client) Transcript() source.TranscriptSource {
	return &endpoint{
		client: c,
		kind:   source.KindTranscript,
		model:  c.prompts.Transcript.Model,
		config: &genai.GenerateContentConfig{
			ResponseMIMEType:  "application/json",
			ResponseSchema:    TranscriptSchema(),
			SystemInstruction: instruction(c.prompts.Transcript.Instructions),
		},
	}
}

// Summary returns the summary source.
func (c *Client) Summary() source.SummarySource {
	return &endpoint{
		client: c,
		kind:   source.KindSummary,
		model:  c.prompts.Summary.Model,
		config: &genai.GenerateContentConfig{
			ResponseMIMEType:  "text/plain",
			SystemInstruction: instruction(c.prompts.Summary.Instructions),
		},
	}
}

// TranscriptSchema is the response schema of the transcript request: an
// array of {heading, timestamp, body[{name, role, text}]}.
func TranscriptSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type:             genai.TypeObject,
			Required:         []string{"heading", "timestamp", "body"},
			PropertyOrdering: []string{"heading", "timestamp", "body"},
			Properties: map[string]*genai.Schema{
				"heading":   {Type: genai.TypeString},
				"timestamp": {Type: genai.TypeString},
				"body": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type:             genai.TypeObject,
						Required:         []string{"role", "text"},
						PropertyOrdering: []string{"name", "role", "text"},
						Properties: map[string]*genai.Schema{
							"name": {Type: genai.TypeString},
							"role": {Type: genai.TypeString},
							"text": {Type: genai.TypeString},
						},
					},
				},
			},
		},
	}
}

func instruction(text string) *genai.Content {
	if text == "" {
		return nil
	}
	return &genai.Content{Parts: []*genai.Part{{Text: text}}}
}

// videoContents passes the video by URL. YouTube links are rewritten to the
// canonical watch URL, the only form the API accepts; other targets are
// passed through.
func videoContents(target string) []*genai.Content {
	if watch, err := youtube.WatchURL(target); err == nil {
		target = watch
	}
	return []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{{
			FileData: &genai.FileData{FileURI: target, MIMEType: videoMIMEType},
		}},
	}}
}

type endpoint struct {
	client *Client
	kind   source.Kind
	model  string
	config *genai.GenerateContentConfig
}

// Open issues the request and waits for the first response, so a rejected
// request fails here rather than on the first read.
func (e *endpoint) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	c := e.client
	ctx, cancel := context.WithCancel(ctx)

	start := time.Now()
	seq := c.models.GenerateContentStream(ctx, e.model, videoContents(target), e.config)
	next, stop := iter.Pull2(seq)

	resp, err, ok := next()
	if err != nil {
		stop()
		cancel()
		c.metrics.RecordSourceError(provider, source.ErrorType(err))
		return nil, fmt.Errorf("%s upstream: %w", e.kind, err)
	}
	c.metrics.RecordSourceOpen(provider, time.Since(start).Seconds())

	pr, pw := io.Pipe()
	go func() {
		defer cancel()
		defer stop()
		for ; ok; resp, err, ok = next() {
			if err != nil {
				c.metrics.RecordSourceError(provider, source.ErrorType(err))
				c.logger.Warn().Err(err).Str("kind", string(e.kind)).Msg("Upstream stream failed")
				pw.CloseWithError(fmt.Errorf("%s upstream: %w", e.kind, err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if _, werr := io.WriteString(pw, text); werr != nil {
				return
			}
		}
		pw.Close()
	}()

	return &stream{PipeReader: pr, cancel: cancel}, nil
}

// stream aborts the upstream request when closed.
type stream struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (s *stream) Close() error {
	s.cancel()
	return s.PipeReader.Close()
}
