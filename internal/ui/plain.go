package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes line-oriented progress, suitable for a pipe, a log
// file, or any non-interactive CLI invocation — there is no TUI mode in
// this build, so every serve/index run goes through this renderer (or
// NopRenderer, when stdout must stay reserved for an MCP stream).
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	stage  Stage
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

func (r *PlainRenderer) Start(_ context.Context) error { return nil }

func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = event.Stage

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}
	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	} else if msg != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d files, %d chunks indexed in %s",
		stats.Files, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Stages.Scan > 0 || stats.Stages.Embed > 0 {
		_, _ = fmt.Fprintln(r.out, "Stage breakdown:")
		_, _ = fmt.Fprintf(r.out, "  scan:    %s\n", stats.Stages.Scan.Round(100*time.Millisecond))
		_, _ = fmt.Fprintf(r.out, "  chunk:   %s\n", stats.Stages.Chunk.Round(100*time.Millisecond))
		if stats.Stages.Context > 0 {
			_, _ = fmt.Fprintf(r.out, "  context: %s\n", stats.Stages.Context.Round(100*time.Millisecond))
		}
		if stats.Stages.Embed > 0 && stats.Chunks > 0 {
			rate := float64(stats.Chunks) / stats.Stages.Embed.Seconds()
			_, _ = fmt.Fprintf(r.out, "  embed:   %s (%.1f chunks/sec)\n", stats.Stages.Embed.Round(100*time.Millisecond), rate)
		}
		_, _ = fmt.Fprintf(r.out, "  index:   %s\n", stats.Stages.Index.Round(100*time.Millisecond))
	}
	if stats.Embedder.Backend != "" {
		_, _ = fmt.Fprintf(r.out, "backend: %s (%s, %d dims)\n", stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

func (r *PlainRenderer) Stop() error { return nil }

// NopRenderer discards every event — used whenever stdout must stay
// reserved for a protocol stream (the MCP stdio transport) and progress
// has nowhere safe to go but a log file instead.
type NopRenderer struct{}

func (NopRenderer) Start(_ context.Context) error       { return nil }
func (NopRenderer) UpdateProgress(_ ProgressEvent)      {}
func (NopRenderer) AddError(_ ErrorEvent)               {}
func (NopRenderer) Complete(_ CompletionStats)          {}
func (NopRenderer) Stop() error                         { return nil }
