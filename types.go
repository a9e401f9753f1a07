package mathimg

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Input contains render parameters.
type Input struct {
	Content    string // Mixed Markdown/LaTeX/TikZ content (required)
	Background string // Background color (optional, "" = service default)
}

// Result is the rendered artifact.
type Result struct {
	Image  []byte // PNG bytes
	Width  int    // Image width in pixels
	Height int    // Image height in pixels

	// Partial reports that some math or diagram spans failed to typeset but
	// the capture itself succeeded. The image contains whatever completed.
	Partial bool

	// Libraries lists the TikZ libraries the content required, for
	// diagnostics. Empty for pure-Markdown input.
	Libraries []string
}

// Option configures a Service.
type Option func(*Service)

// serviceConfig holds internal configuration for Service.
type serviceConfig struct {
	timeout    time.Duration
	background string
	log        *logrus.Logger
}

// defaultTimeout bounds one render from document load through capture.
// Diagram compilation is the slow path; plain math settles in well under
// a second once the engine is warm.
const defaultTimeout = 60 * time.Second

// WithTimeout sets the overall render timeout (load through capture).
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("mathimg: WithTimeout duration must be positive")
	}
	return func(s *Service) {
		s.cfg.timeout = d
	}
}

// WithBackground sets the default background color used when Input.Background
// is empty. The value is validated at render time, not here.
func WithBackground(color string) Option {
	return func(s *Service) {
		s.cfg.background = color
	}
}

// WithLogger sets the logger used for render progress and diagnostics.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Service) {
		s.cfg.log = log
	}
}
