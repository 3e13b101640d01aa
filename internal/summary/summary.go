// Package summary talks to the optional summarization collaborator. It is
// never allowed to block or fail document creation.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/doctrack/doctrack/internal/document"
	"github.com/doctrack/doctrack/pkg/logger"
	"github.com/doctrack/doctrack/pkg/metrics"
)

// Result is what the collaborator returns for a document.
type Result struct {
	Summary        string                  `json:"summary"`
	Classification document.Classification `json:"classification"`
}

// Analyzer produces a summary and classification for a new document.
type Analyzer interface {
	Analyze(ctx context.Context, title, description string) (Result, error)
}

const (
	maxSummaryRunes    = 160
	complexThreshold   = 400
	technicalThreshold = 1500
)

// Fallback is the deterministic analyzer used when no collaborator is
// configured or the collaborator fails.
type Fallback struct{}

func (Fallback) Analyze(_ context.Context, title, description string) (Result, error) {
	text := strings.TrimSpace(description)
	if text == "" {
		text = strings.TrimSpace(title)
	}
	if i := strings.IndexAny(text, ".!?\n"); i >= 0 {
		text = strings.TrimSpace(text[:i+1])
	}
	if utf8.RuneCountInString(text) > maxSummaryRunes {
		r := []rune(text)
		text = string(r[:maxSummaryRunes-1]) + "…"
	}
	n := utf8.RuneCountInString(description)
	class := document.ClassSimple
	switch {
	case n >= technicalThreshold:
		class = document.ClassHighlyTechnical
	case n >= complexThreshold:
		class = document.ClassComplex
	}
	return Result{Summary: text, Classification: class}, nil
}

// HTTPAnalyzer posts {title, description} as JSON to an external endpoint
// and expects a Result back.
type HTTPAnalyzer struct {
	url    string
	client *http.Client
}

func NewHTTPAnalyzer(url string, timeout time.Duration) *HTTPAnalyzer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPAnalyzer{url: url, client: &http.Client{Timeout: timeout}}
}

func (h *HTTPAnalyzer) Analyze(ctx context.Context, title, description string) (Result, error) {
	body, err := json.Marshal(map[string]string{"title": title, "description": description})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("summarizer request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("summarizer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var r Result
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Result{}, fmt.Errorf("summarizer response: %w", err)
	}
	if !r.Classification.Valid() {
		r.Classification = document.ClassSimple
	}
	return r, nil
}

// Safe wraps an optional primary analyzer. It never returns an error: on
// failure it logs and answers with the Fallback result.
type Safe struct {
	primary Analyzer
	timeout time.Duration
}

// WithFallback returns an analyzer that degrades to Fallback. primary may
// be nil.
func WithFallback(primary Analyzer, timeout time.Duration) *Safe {
	return &Safe{primary: primary, timeout: timeout}
}

func (s *Safe) Analyze(ctx context.Context, title, description string) (Result, error) {
	if s.primary != nil {
		cctx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		r, err := s.primary.Analyze(cctx, title, description)
		if err == nil {
			return r, nil
		}
		logger.Warnf("summarizer unavailable, using fallback: %v", err)
	}
	metrics.SummarizerFallbacks.Inc()
	return Fallback{}.Analyze(ctx, title, description)
}
