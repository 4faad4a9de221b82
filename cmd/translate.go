/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/valpere/digestran/internal/config"
	"github.com/valpere/digestran/internal/detector"
	"github.com/valpere/digestran/internal/pipeline"
	"github.com/valpere/digestran/internal/ratelimit"
	"github.com/valpere/digestran/internal/render"
	"github.com/valpere/digestran/internal/store"
)

var (
	inputFile  string
	outputFile string
	reportFile string
	noHTML     bool
	noStore    bool
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a digest document",
	Long: `Translate a digest of ranked news lists.

The input is split into sections on blank lines. The first line of a
section is its title and is kept verbatim; numbered lines ("1. text")
are translated, and trailing "[URL:...]" markers are restored afterwards.

Outputs:
  -o out.txt     translated digest (failed sections are left out)
  out.html       HTML rendering next to the text output (unless --no-html)
  --report       YAML run report with per-chunk outcomes

The run is recorded in the history database unless --no-store is given.
The command exits non-zero when no section could be translated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}

		log, closer, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		raw, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		text := string(raw)

		if cfg.SourceLang == config.AutoDetect {
			cfg.SourceLang = "zh"
			if detected, ok := detector.New().DetectISO(text); ok {
				cfg.SourceLang = strings.ToLower(detected)
			}
			log.Info("detected source language", "lang", cfg.SourceLang)
		}

		svc, err := buildService(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pc := cfg.Pipeline()
		pc.Logger = log
		pc.Metrics = pipeline.NewMetrics()

		if cfg.MetricsAddr != "" {
			shutdown := serveMetrics(cfg.MetricsAddr, pc.Metrics, log)
			defer shutdown()
		}

		p := pipeline.New(svc, ratelimit.New(cfg.RequestInterval), pc)
		report, runErr := p.Run(ctx, text)
		if runErr != nil && !errors.Is(runErr, pipeline.ErrNoChunksCompleted) {
			return runErr
		}

		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		if report.Summary.Completed > 0 {
			if err := writeOutputs(report, loc); err != nil {
				return err
			}
		}

		if reportFile != "" {
			if err := writeReport(reportFile, report); err != nil {
				return err
			}
		}

		if !noStore && report.Summary.Total > 0 {
			if err := recordRun(ctx, cfg, report, loc, log); err != nil {
				log.Error("failed to record run", "error", err)
			}
		}

		printSummary(os.Stdout, report)
		return runErr
	},
}

func writeOutputs(report *pipeline.Report, loc *time.Location) error {
	if err := writeFile(outputFile, []byte(report.Output+"\n")); err != nil {
		return err
	}
	if noHTML {
		return nil
	}

	page, err := render.HTML(report.Output, render.Options{
		GeneratedAt: report.FinishedAt.In(loc),
		Footer:      fmt.Sprintf("%d of %d sections translated", report.Summary.Completed, report.Summary.Total),
	})
	if err != nil {
		return err
	}
	return writeFile(htmlPath(outputFile), []byte(page))
}

// htmlPath replaces the extension of path with .html.
func htmlPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".html"
}

type chunkReport struct {
	ID       string        `yaml:"id"`
	Status   string        `yaml:"status"`
	Model    string        `yaml:"model"`
	Attempts int           `yaml:"attempts"`
	Duration time.Duration `yaml:"duration"`
	Error    string        `yaml:"error,omitempty"`
}

type runReport struct {
	pipeline.Report `yaml:",inline"`
	Input           string        `yaml:"input"`
	Output          string        `yaml:"output"`
	Chunks          []chunkReport `yaml:"chunks"`
}

func writeReport(path string, report *pipeline.Report) error {
	out := runReport{Report: *report, Input: inputFile, Output: outputFile}
	for _, st := range report.Chunks {
		out.Chunks = append(out.Chunks, chunkReport{
			ID:       st.ID,
			Status:   st.Status.String(),
			Model:    report.Models.ID(st.Model),
			Attempts: st.Attempts,
			Duration: st.Duration,
			Error:    st.Err,
		})
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return writeFile(path, data)
}

func recordRun(ctx context.Context, cfg *config.Config, report *pipeline.Report, loc *time.Location, log *slog.Logger) error {
	// The run may have been interrupted; persisting should still happen.
	ctx = context.WithoutCancel(ctx)

	db, err := openStore(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	s := report.Summary
	run := store.Run{
		ID:            report.RunID,
		InputPath:     inputFile,
		OutputPath:    outputFile,
		PrimaryModel:  report.Models.Primary,
		FallbackModel: report.Models.Fallback,
		Workers:       report.Workers,
		Total:         s.Total,
		Completed:     s.Completed,
		Failed:        s.Failed,
		SuccessRate:   s.SuccessRate,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
	}
	outcomes := make([]store.ChunkOutcome, 0, len(report.Chunks))
	for _, st := range report.Chunks {
		outcomes = append(outcomes, store.ChunkOutcome{
			ChunkID:  st.ID,
			Status:   st.Status.String(),
			Attempts: st.Attempts,
			Model:    report.Models.ID(st.Model),
			Error:    st.Err,
			Duration: st.Duration,
		})
	}
	if err := db.SaveRun(ctx, run, outcomes); err != nil {
		return err
	}

	if s.Completed > 0 {
		d := store.NewDigest(outputFile, report.Output, report.RunID, report.FinishedAt, loc)
		id, err := db.SaveDigest(ctx, d)
		if err != nil {
			return err
		}
		log.Info("digest saved", "id", id, "date", d.Date, "sections", d.Sections)
	}

	if retention := cfg.Retention(); retention > 0 {
		n, err := db.PruneOlderThan(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("pruned old digests", "count", n)
		}
	}
	return nil
}

func serveMetrics(addr string, m *pipeline.Metrics, log *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printSummary(out io.Writer, report *pipeline.Report) {
	s := report.Summary
	fmt.Fprintf(out, "Run:           %s\n", report.RunID)
	fmt.Fprintf(out, "Total chunks:  %d\n", s.Total)
	fmt.Fprintf(out, "Successful:    %d\n", s.Completed)
	fmt.Fprintf(out, "Failed:        %d\n", s.Failed)
	fmt.Fprintf(out, "Success rate:  %.1f%%\n", s.SuccessRate)
	fmt.Fprintf(out, "Duration:      %s\n", report.Duration.Round(time.Millisecond))
	if len(s.FailedChunks) > 0 {
		fmt.Fprintf(out, "Failed chunks: %s\n", strings.Join(s.FailedChunks, ", "))
	}
	if len(s.Models) == 0 {
		return
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tATTEMPTS\tOK\tFAILED\tRATE LIMITED\tAVG LATENCY")
	for _, id := range []string{report.Models.Primary, report.Models.Fallback} {
		m, ok := s.Models[id]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
			id, m.Attempts, m.Successes, m.Failures, m.RateLimited, m.AvgLatency.Round(time.Millisecond))
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(translateCmd)

	f := translateCmd.Flags()
	f.StringVarP(&inputFile, "input", "i", "", "Input digest file (required)")
	f.StringVarP(&outputFile, "output", "o", "", "Output file for the translated digest (required)")
	f.StringVar(&reportFile, "report", "", "Write a YAML run report to this file")
	f.BoolVar(&noHTML, "no-html", false, "Do not write the HTML rendering")
	f.BoolVar(&noStore, "no-store", false, "Do not record the run in the history database")

	f.StringP("provider", "p", config.ProviderGemini, "Translation provider: gemini, openrouter, ollama, google")
	f.String("api-key", "", "Provider API key")
	f.String("base-url", "", "Provider base URL")
	f.StringP("credentials", "c", "", "Path to Google Cloud credentials")
	f.String("primary-model", "", "Primary model (provider default if empty)")
	f.String("fallback-model", "", "Fallback model (provider default if empty)")
	f.StringP("source", "s", "zh", `Source language code, or "auto"`)
	f.StringP("target", "t", "vi", "Target language code")
	f.IntP("workers", "w", pipeline.DefaultWorkers, "Number of concurrent workers")
	f.Duration("interval", ratelimit.DefaultInterval, "Minimum spacing between backend requests")
	f.Duration("cooldown", pipeline.DefaultCooldown, "Global pause after the fallback model is rate limited")
	f.Duration("primary-backoff", pipeline.DefaultPrimaryBackoff, "Worker pause after the primary model is rate limited")
	f.Duration("call-timeout", pipeline.DefaultCallTimeout, "Timeout of a single backend request")
	f.Int("max-retries", pipeline.DefaultMaxRetries, "Retries on the fallback model after its first attempt (0-2)")
	f.Bool("escalate-primary-cooldown", false, "Make the primary rate-limit pause global")
	f.Bool("validate-language", false, "Reject translations not in the target language")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")

	bindFlags(f, map[string]string{
		"provider":                  "provider",
		"api_key":                   "api-key",
		"base_url":                  "base-url",
		"credentials":               "credentials",
		"primary_model":             "primary-model",
		"fallback_model":            "fallback-model",
		"source_lang":               "source",
		"target_lang":               "target",
		"workers":                   "workers",
		"request_interval":          "interval",
		"cooldown":                  "cooldown",
		"primary_backoff":           "primary-backoff",
		"call_timeout":              "call-timeout",
		"max_retries":               "max-retries",
		"escalate_primary_cooldown": "escalate-primary-cooldown",
		"validate_language":         "validate-language",
		"metrics_addr":              "metrics-addr",
	})

	translateCmd.MarkFlagRequired("input")
	translateCmd.MarkFlagRequired("output")
}
