// Command digestclient starts an analysis over gRPC and prints its snapshots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "ai-video-digest-service/internal/api/grpc"
	"ai-video-digest-service/internal/models"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "gRPC server address")
	url := flag.String("url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "YouTube video URL")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall timeout")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	stream, err := grpcapi.NewClient(conn).Analyze(ctx, *url, grpc.WaitForReady(true))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start analysis")
	}
	log.Info().Str("url", *url).Msg("Analysis started")

	var last models.Index
	var summary string
	var blocks []models.Block
	for {
		snap, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Stream failed")
		}
		log.Info().
			Uint64("seq", snap.Seq).
			Str("event", string(snap.Event)).
			Str("state", snap.State.String()).
			Int("blocks", len(snap.Blocks)).
			Int("summaryChars", len(snap.Summary)).
			Msg("Snapshot")
		if snap.TranscriptStatus.Error != "" {
			log.Warn().Str("error", snap.TranscriptStatus.Error).Msg("Transcript failed")
		}
		if snap.SummaryStatus.Error != "" {
			log.Warn().Str("error", snap.SummaryStatus.Error).Msg("Summary failed")
		}
		last, summary, blocks = snap.Index, snap.Summary, snap.Blocks
	}

	printDigest(blocks, last, summary)
}

func printDigest(blocks []models.Block, idx models.Index, summary string) {
	fmt.Println("# Summary")
	fmt.Println(summary)
	fmt.Println()
	fmt.Println("# Transcript")
	for _, b := range blocks {
		fmt.Printf("## [%s] %s\n", b.Timestamp, b.Heading)
		for _, u := range b.Body {
			speaker := u.Name
			if speaker == "" {
				speaker = u.Role
			}
			fmt.Printf("%s (%d words): %s\n", speaker, u.WordCount(), u.Text)
		}
	}
	fmt.Println()
	fmt.Printf("Sections: %s\n", strings.Join(idx.Headings, ", "))
	fmt.Printf("Speakers: %s\n", strings.Join(idx.Names, ", "))
}
