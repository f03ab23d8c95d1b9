/*
Copyright © 2026 The subrefine authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"subrefine/internal/chunker"
	"subrefine/internal/detector"
	"subrefine/internal/dispatcher"
	"subrefine/internal/refiner"
	"subrefine/internal/transcript"
)

var (
	inputFile   string
	outputFile  string
	partialFile string

	videoTitle       string
	videoDescription string

	backend string
	model   string
	baseURL string
	apiKey  string

	concurrency int
	maxPerChunk int

	noDetect bool
	verbose  bool
)

var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Correct a transcript and realign it onto its segments",
	Long: `Correct an auto-generated transcript through a completion model.

The input is a JSON array of segments:

  [{"text": "...", "start_ms": 0, "end_ms": 4200}, ...]

Segments are chunked, corrected concurrently and realigned; the output has
exactly the same segments in the same order with corrected text. With
--partial, the priority window (the first minutes of the video) is written
out as soon as its chunks complete.

Backends:
  - openrouter  OpenRouter / OpenAI-compatible chat API (requires API key)
  - ollama      Self-hosted Ollama server`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		logLevel := slog.LevelWarn
		if verbose {
			logLevel = slog.LevelInfo
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

		segments, err := transcript.LoadFile(inputFile)
		if err != nil {
			return err
		}

		client, err := buildClient(backend, apiKey, baseURL, model)
		if err != nil {
			return err
		}

		preamble := buildPreamble(segments, logger)

		orch := &refiner.Orchestrator{
			Client:          client,
			Logger:          logger,
			RunID:           uuid.New().String(),
			Concurrency:     concurrency,
			MaxPerChunk:     maxPerChunk,
			PreambleBuilder: preamble,
		}
		if partialFile != "" {
			orch.OnPriority = func(partial []transcript.Segment) {
				if err := transcript.SaveFile(partialFile, partial); err != nil {
					logger.Warn("failed to write partial result", "error", err)
					return
				}
				logger.Info("partial result written", "file", partialFile, "segments", len(partial))
			}
		}

		refined, err := orch.Refine(cmd.Context(), segments, videoTitle, videoDescription)
		if err != nil {
			return err
		}

		if err := transcript.SaveFile(outputFile, refined); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Refined %d segments -> %s\n", len(refined), outputFile)
		return nil
	},
}

// buildPreamble wraps the default title/description preamble with a
// detected-language hint so the model corrects in place instead of
// translating. Detection failure just leaves the hint out.
func buildPreamble(segments []transcript.Segment, logger *slog.Logger) func(title, description string) string {
	language := ""
	if !noDetect {
		if name, ok := detector.New().LanguageName(detector.SampleText(segments)); ok {
			language = name
			logger.Info("detected transcript language", "language", name)
		}
	}
	return func(title, description string) string {
		preamble := refiner.DefaultPreamble(title, description)
		if language == "" {
			return preamble
		}
		hint := fmt.Sprintf("The transcript is in %s; correct it in %s.", language, language)
		if preamble == "" {
			return hint
		}
		return preamble + hint + "\n"
	}
}

func init() {
	rootCmd.AddCommand(refineCmd)

	refineCmd.Flags().StringVarP(&inputFile, "input", "i", "", "input segments JSON file (required)")
	refineCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output segments JSON file (required)")
	refineCmd.Flags().StringVar(&partialFile, "partial", "", "write priority-window segments here as soon as they complete")

	refineCmd.Flags().StringVar(&videoTitle, "title", "", "video title for prompt context")
	refineCmd.Flags().StringVar(&videoDescription, "description", "", "video description for prompt context")

	refineCmd.Flags().StringVar(&backend, "backend", "openrouter", "completion backend: openrouter or ollama")
	refineCmd.Flags().StringVar(&model, "model", "", "model name (backend-specific default)")
	refineCmd.Flags().StringVar(&baseURL, "base-url", "", "completion endpoint base URL")
	refineCmd.Flags().StringVar(&apiKey, "api-key", "", "API key (or SUBREFINE_API_KEY)")

	refineCmd.Flags().IntVar(&concurrency, "concurrency", dispatcher.DefaultConcurrency, "maximum concurrent completion requests")
	refineCmd.Flags().IntVar(&maxPerChunk, "max-per-chunk", chunker.DefaultMaxPerChunk, "maximum segments per completion request")

	refineCmd.Flags().BoolVar(&noDetect, "no-detect", false, "skip transcript language detection")
	refineCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log per-chunk progress")

	_ = refineCmd.MarkFlagRequired("input")
	_ = refineCmd.MarkFlagRequired("output")
}
