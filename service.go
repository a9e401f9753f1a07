package mathimg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/willixrain/go-mathimg/internal/pipeline"
)

// Service orchestrates the normalize, assemble, render pipeline. One Service
// owns one render session; use ServicePool for concurrent workloads.
type Service struct {
	cfg        serviceConfig
	normalizer *pipeline.Normalizer
	assembler  *pipeline.Assembler
	renderer   imageRenderer

	// newRenderer replaces a degraded session. Overridable in tests.
	newRenderer func() imageRenderer
}

// New creates a Service with default configuration.
// Use options to customize behavior (e.g., WithTimeout, WithBackground).
func New(opts ...Option) *Service {
	s := &Service{
		cfg: serviceConfig{
			timeout:    defaultTimeout,
			background: pipeline.DefaultBackground,
			log:        logrus.StandardLogger(),
		},
		normalizer: &pipeline.Normalizer{},
		assembler:  pipeline.NewAssembler(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.newRenderer == nil {
		s.newRenderer = func() imageRenderer {
			return newRodSession(s.cfg.timeout, s.cfg.log)
		}
	}
	// Create render session if not injected (e.g., by tests)
	if s.renderer == nil {
		s.renderer = s.newRenderer()
	}

	return s
}

// Render runs the full pipeline and returns the captured image.
// The context is used for cancellation; each render attempt is additionally
// bounded by the configured timeout. A timeout is retried once on a fresh
// session before surfacing, guarding against one-off engine flakiness.
func (s *Service) Render(ctx context.Context, input Input) (*Result, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, ErrEmptyContent
	}

	background := input.Background
	if background == "" {
		background = s.cfg.background
	}

	norm := s.normalizer.Normalize(input.Content)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := s.assembler.Assemble(ctx, norm, background)
	if err != nil {
		return nil, fmt.Errorf("assembling document: %w", err)
	}

	// A session degraded by a previous request is replaced before use,
	// never rendered on again.
	if !s.renderer.Healthy() {
		s.replaceRenderer()
	}

	result, err := s.renderer.Render(ctx, doc)
	if errors.Is(err, ErrRenderTimeout) {
		s.cfg.log.WithError(err).Warn("render timed out, retrying once on a fresh session")
		s.replaceRenderer()
		result, err = s.renderer.Render(ctx, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("rendering: %w", err)
	}

	result.Libraries = norm.Libraries
	return result, nil
}

// Normalize exposes the repair stage on its own, for callers that want the
// classification (math/diagram detection, required libraries) without
// rendering.
func (s *Service) Normalize(raw string) pipeline.NormalizedDocument {
	return s.normalizer.Normalize(raw)
}

// Healthy reports whether the underlying render session is reusable.
// A pool uses this to decide between releasing and discarding.
func (s *Service) Healthy() bool {
	return s.renderer.Healthy()
}

// Close releases resources (headless browser).
func (s *Service) Close() error {
	if s.renderer != nil {
		return s.renderer.Close()
	}
	return nil
}

// replaceRenderer discards the current session and creates a fresh one.
func (s *Service) replaceRenderer() {
	if err := s.renderer.Close(); err != nil {
		s.cfg.log.WithError(err).Debug("closing degraded session")
	}
	s.renderer = s.newRenderer()
}
