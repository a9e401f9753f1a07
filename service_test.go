package mathimg

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/willixrain/go-mathimg/internal/pipeline"
)

// stubRenderer implements imageRenderer without a browser.
type stubRenderer struct {
	result  *Result
	err     error
	healthy bool
	calls   int
	closed  bool
	lastDoc *pipeline.AssembledDocument
}

func (s *stubRenderer) Render(ctx context.Context, doc *pipeline.AssembledDocument) (*Result, error) {
	s.calls++
	s.lastDoc = doc
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &Result{Image: []byte("png"), Width: 100, Height: 50}, nil
}

func (s *stubRenderer) Healthy() bool { return s.healthy }

func (s *stubRenderer) Close() error {
	s.closed = true
	return nil
}

// withStubRenderer injects a renderer and a factory producing replacements.
func withStubRenderer(first *stubRenderer, replacements ...*stubRenderer) Option {
	return func(s *Service) {
		s.renderer = first
		i := 0
		s.newRenderer = func() imageRenderer {
			if i < len(replacements) {
				r := replacements[i]
				i++
				return r
			}
			return &stubRenderer{healthy: true}
		}
	}
}

func TestRenderEmptyContent(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{healthy: true}
	svc := New(withStubRenderer(stub))

	for _, content := range []string{"", "   ", "\n\t\n"} {
		if _, err := svc.Render(context.Background(), Input{Content: content}); !errors.Is(err, ErrEmptyContent) {
			t.Errorf("Render(%q) error = %v, want ErrEmptyContent", content, err)
		}
	}
	if stub.calls != 0 {
		t.Errorf("renderer called %d times for empty input", stub.calls)
	}
}

func TestRenderInvalidBackground(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{healthy: true}
	svc := New(withStubRenderer(stub))

	_, err := svc.Render(context.Background(), Input{Content: "hello", Background: "not-a-color"})
	if !errors.Is(err, ErrInvalidBackground) {
		t.Fatalf("error = %v, want ErrInvalidBackground", err)
	}
	if stub.calls != 0 {
		t.Error("renderer must not be called when assembly fails")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{healthy: true}
	svc := New(withStubRenderer(stub))

	result, err := svc.Render(context.Background(), Input{Content: "# Title\n\n$E=mc^2$"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(result.Image) == 0 || result.Width == 0 || result.Height == 0 {
		t.Errorf("incomplete result: %+v", result)
	}
	if result.Partial {
		t.Error("unexpected partial flag")
	}
	if stub.calls != 1 {
		t.Errorf("renderer called %d times, want 1", stub.calls)
	}
	if stub.lastDoc == nil || !stub.lastDoc.HasMath {
		t.Error("assembled document should have math enabled")
	}
}

func TestRenderDefaultBackgroundApplied(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{healthy: true}
	svc := New(withStubRenderer(stub))

	if _, err := svc.Render(context.Background(), Input{Content: "hello"}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := stub.lastDoc.Background; got != pipeline.DefaultBackground {
		t.Errorf("background = %q, want %q", got, pipeline.DefaultBackground)
	}
}

func TestRenderConfiguredBackground(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{healthy: true}
	svc := New(withStubRenderer(stub), WithBackground("#FFFFFF"))

	if _, err := svc.Render(context.Background(), Input{Content: "hello"}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := stub.lastDoc.Background; got != "#FFFFFF" {
		t.Errorf("background = %q, want #FFFFFF", got)
	}
}

func TestRenderTimeoutRetriedOnceOnFreshSession(t *testing.T) {
	t.Parallel()

	first := &stubRenderer{healthy: false, err: ErrRenderTimeout}
	second := &stubRenderer{healthy: true}
	svc := New(withStubRenderer(first, second))

	result, err := svc.Render(context.Background(), Input{Content: "$x$"})
	if err != nil {
		t.Fatalf("Render() error = %v, want retry success", err)
	}
	if result == nil || len(result.Image) == 0 {
		t.Fatal("missing result after retry")
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", first.calls, second.calls)
	}
	if !first.closed {
		t.Error("timed-out session must be closed, not reused")
	}
}

func TestRenderTimeoutSurfacesAfterOneRetry(t *testing.T) {
	t.Parallel()

	first := &stubRenderer{healthy: false, err: ErrRenderTimeout}
	second := &stubRenderer{healthy: false, err: ErrRenderTimeout}
	svc := New(withStubRenderer(first, second))

	_, err := svc.Render(context.Background(), Input{Content: "$x$"})
	if !errors.Is(err, ErrRenderTimeout) {
		t.Fatalf("error = %v, want ErrRenderTimeout", err)
	}
	if total := first.calls + second.calls; total != 2 {
		t.Errorf("total attempts = %d, want exactly 2", total)
	}
}

func TestRenderCrashNotRetried(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{healthy: false, err: ErrEngineCrash}
	svc := New(withStubRenderer(stub))

	_, err := svc.Render(context.Background(), Input{Content: "$x$"})
	if !errors.Is(err, ErrEngineCrash) {
		t.Fatalf("error = %v, want ErrEngineCrash", err)
	}
	if stub.calls != 1 {
		t.Errorf("crash retried: %d calls", stub.calls)
	}
	if svc.Healthy() {
		t.Error("service must report unhealthy after crash")
	}
}

func TestRenderReplacesDegradedSessionBeforeUse(t *testing.T) {
	t.Parallel()

	degraded := &stubRenderer{healthy: false}
	fresh := &stubRenderer{healthy: true}
	svc := New(withStubRenderer(degraded, fresh))

	if _, err := svc.Render(context.Background(), Input{Content: "hello"}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if degraded.calls != 0 {
		t.Error("degraded session must not be rendered on")
	}
	if fresh.calls != 1 {
		t.Errorf("fresh session calls = %d, want 1", fresh.calls)
	}
}

func TestRenderPartialFlagPassedThrough(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{
		healthy: true,
		result:  &Result{Image: []byte("png"), Width: 10, Height: 10, Partial: true},
	}
	svc := New(withStubRenderer(stub))

	result, err := svc.Render(context.Background(), Input{Content: "```tikz\n\\begin{tikzpicture}\\draw (0,0)--(1,1);\\end{tikzpicture}\n```"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !result.Partial {
		t.Error("partial flag lost")
	}
}

func TestRenderContextCancelled(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{healthy: true}
	svc := New(withStubRenderer(stub))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Render(ctx, Input{Content: "hello"}); err == nil {
		t.Error("expected error on cancelled context")
	}
}

func TestNormalizeExposed(t *testing.T) {
	t.Parallel()

	svc := New(withStubRenderer(&stubRenderer{healthy: true}))
	doc := svc.Normalize("$E=mc^2$ and text")
	if !doc.HasMath {
		t.Error("expected math detection through Service.Normalize")
	}
}

func TestWithTimeoutPanicsOnNonPositive(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for non-positive timeout")
		}
	}()
	WithTimeout(0)
}

func TestWithTimeoutConfigures(t *testing.T) {
	t.Parallel()

	svc := New(withStubRenderer(&stubRenderer{healthy: true}), WithTimeout(5*time.Second))
	if svc.cfg.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", svc.cfg.timeout)
	}
}

func TestRenderErrorMessageReadable(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{healthy: false, err: ErrEngineCrash}
	svc := New(withStubRenderer(stub))

	_, err := svc.Render(context.Background(), Input{Content: "$x$"})
	if err == nil || !strings.Contains(err.Error(), "rendering") {
		t.Errorf("error %v should say which stage failed", err)
	}
}
