package mathimg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/willixrain/go-mathimg/internal/fileutil"
	"github.com/willixrain/go-mathimg/internal/pipeline"
)

// imageRenderer abstracts headless capture to enable testing without a browser.
type imageRenderer interface {
	Render(ctx context.Context, doc *pipeline.AssembledDocument) (*Result, error)
	Healthy() bool
	Close() error
}

// Compile-time interface check
var _ imageRenderer = (*rodSession)(nil)

// Render phases, in order. failed is reachable from any of them.
type renderState string

const (
	stateLoaded      renderState = "loaded"
	stateTypesetting renderState = "typesetting"
	stateMeasured    renderState = "measured"
	stateCaptured    renderState = "captured"
	stateFailed      renderState = "failed"
)

// Viewport geometry. Width matches the content column in the stylesheet plus
// page padding; the device scale doubles the capture resolution so math
// glyphs stay crisp in chat clients that zoom images.
const (
	viewportWidth  = 1150
	viewportHeight = 1200
	deviceScale    = 2.0
)

// typesetPollInterval is how often the driver samples the completion markers
// while waiting for the typesetting engines.
const typesetPollInterval = 200 * time.Millisecond

// typesetStateJS samples the page's completion markers in one round trip:
// the math engine's done/error flags and the per-diagram data-state
// attributes settled by the page's watcher script.
const typesetStateJS = `() => {
	const diagrams = document.querySelectorAll(".diagram");
	let done = 0, failed = 0;
	for (const el of diagrams) {
		const s = el.getAttribute("data-state");
		if (s === "done") done++;
		else if (s === "error") failed++;
	}
	return {
		mathDone: window.__mathDone === true,
		mathError: !!window.__mathError,
		total: diagrams.length,
		done: done,
		failed: failed,
	};
}`

// typesetState mirrors the object produced by typesetStateJS.
type typesetState struct {
	MathDone  bool
	MathError bool
	Total     int
	Done      int
	Failed    int
}

// settled reports whether every expected completion signal has arrived,
// counting per-diagram errors as settled so one broken diagram cannot stall
// the document.
func (st typesetState) settled(hasMath bool) bool {
	if hasMath && !st.MathDone && !st.MathError {
		return false
	}
	return st.Done+st.Failed >= st.Total
}

// rodSession drives one headless browser instance through the render state
// machine. Rod automatically downloads Chromium on first run if not found.
// A session is never shared by two concurrent renders; the pool enforces
// mutual exclusion.
type rodSession struct {
	browser  *rod.Browser
	timeout  time.Duration
	degraded bool
	log      *logrus.Logger
}

// newRodSession creates a session with the given render timeout.
func newRodSession(timeout time.Duration, log *logrus.Logger) *rodSession {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &rodSession{timeout: timeout, log: log}
}

// ensureBrowser lazily connects to the browser.
func (r *rodSession) ensureBrowser() error {
	if r.browser != nil {
		return nil
	}

	l := launcher.New()

	// Use pre-installed browser if specified (Docker/containerized environments)
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	r.browser = rod.New().ControlURL(u)
	if err := r.browser.Connect(); err != nil {
		r.browser = nil
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	return nil
}

// Healthy reports whether the session can be returned to a pool. A session
// that timed out or crashed mid-render is degraded and must be discarded.
func (r *rodSession) Healthy() bool {
	return !r.degraded
}

// degradingFailures are the failures after which the session must not be
// reused: the page or browser is in an unknown state, so the pool discards
// the session and a fresh one takes its place.
var degradingFailures = []error{
	ErrPageCreate,
	ErrPageLoad,
	ErrEngineCrash,
	ErrRenderTimeout,
	ErrCaptureFailed,
}

// fail wraps cause in sentinel and degrades the session when that sentinel
// means the browser can no longer be trusted.
func (r *rodSession) fail(sentinel error, cause error) error {
	for _, d := range degradingFailures {
		if errors.Is(sentinel, d) {
			r.degraded = true
			break
		}
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}

// Close releases browser resources.
func (r *rodSession) Close() error {
	if r.browser != nil {
		err := r.browser.Close()
		r.browser = nil
		return err
	}
	return nil
}

// Render loads the assembled document, waits for typesetting to settle,
// measures the content bounding box, and captures exactly that region as a
// PNG. The context deadline bounds the whole sequence; on timeout during
// typesetting the session is marked degraded and ErrRenderTimeout returned.
func (r *rodSession) Render(ctx context.Context, doc *pipeline.AssembledDocument) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.ensureBrowser(); err != nil {
		return nil, err
	}

	id := uuid.NewString()[:8]
	log := r.log.WithFields(logrus.Fields{
		"render":   id,
		"math":     doc.HasMath,
		"diagrams": doc.DiagramCount,
	})

	tmpPath, cleanup, err := fileutil.WriteTempFile(doc.HTML, "html")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	deadline := time.Now().Add(timeout)

	page, err := r.browser.Page(proto.TargetCreateTarget{URL: "file://" + tmpPath})
	if err != nil {
		return nil, r.fail(ErrPageCreate, err)
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            viewportHeight,
		DeviceScaleFactor: deviceScale,
		Mobile:            false,
	}); err != nil {
		return nil, r.fail(ErrEngineCrash, err)
	}

	if err := page.Timeout(time.Until(deadline)).WaitLoad(); err != nil {
		return nil, r.fail(ErrPageLoad, err)
	}
	log.WithField("state", stateLoaded).Debug("document loaded")

	st, err := r.awaitTypesetting(ctx, page, doc, deadline, log)
	if err != nil {
		log.WithField("state", stateFailed).WithError(err).Warn("render failed")
		return nil, err
	}

	partial := st.MathError || st.Failed > 0

	// Zero content completed is a failure, not a blank partial image.
	if doc.HasTypesetting() {
		expected, completed := 0, 0
		if doc.HasMath {
			expected++
			if !st.MathError {
				completed++
			}
		}
		expected += st.Total
		completed += st.Done
		if expected > 0 && completed == 0 {
			return nil, ErrNoContentRendered
		}
	}

	box, err := r.measure(page, deadline)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"state":  stateMeasured,
		"width":  box.Width,
		"height": box.Height,
	}).Debug("content measured")

	img, err := page.Timeout(time.Until(deadline)).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:      box.X,
			Y:      box.Y,
			Width:  box.Width,
			Height: box.Height,
			Scale:  1,
		},
	})
	if err != nil {
		return nil, r.fail(ErrCaptureFailed, err)
	}
	log.WithFields(logrus.Fields{
		"state":   stateCaptured,
		"bytes":   len(img),
		"partial": partial,
	}).Info("render captured")

	return &Result{
		Image:   img,
		Width:   int(math.Ceil(box.Width * deviceScale)),
		Height:  int(math.Ceil(box.Height * deviceScale)),
		Partial: partial,
	}, nil
}

// awaitTypesetting polls the completion markers until every engine has
// settled or the deadline passes. Documents with no typesetting content skip
// the wait entirely.
func (r *rodSession) awaitTypesetting(ctx context.Context, page *rod.Page, doc *pipeline.AssembledDocument, deadline time.Time, log *logrus.Entry) (typesetState, error) {
	if !doc.HasTypesetting() {
		return typesetState{}, nil
	}
	log.WithField("state", stateTypesetting).Debug("awaiting typesetting")

	ticker := time.NewTicker(typesetPollInterval)
	defer ticker.Stop()

	for {
		st, err := r.sampleTypesetState(page, deadline)
		if err != nil {
			return st, r.fail(ErrEngineCrash, err)
		}
		if st.settled(doc.HasMath) {
			// One more frame so the layout reflects the last-settled engine.
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
			}
			return st, nil
		}

		if time.Now().After(deadline) {
			return st, r.fail(ErrRenderTimeout, fmt.Errorf("%d/%d diagrams after %s", st.Done, st.Total, r.timeout))
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return st, r.fail(ErrRenderTimeout, ctx.Err())
			}
			// Cancelled mid-typesetting: the page is half settled, discard.
			r.degraded = true
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

// sampleTypesetState evaluates the marker-sampling script in the page.
func (r *rodSession) sampleTypesetState(page *rod.Page, deadline time.Time) (typesetState, error) {
	obj, err := page.Timeout(time.Until(deadline)).Eval(typesetStateJS)
	if err != nil {
		return typesetState{}, err
	}
	v := obj.Value
	return typesetState{
		MathDone:  v.Get("mathDone").Bool(),
		MathError: v.Get("mathError").Bool(),
		Total:     v.Get("total").Int(),
		Done:      v.Get("done").Int(),
		Failed:    v.Get("failed").Int(),
	}, nil
}

// measure returns the bounding box of the content container, so the capture
// adapts to the content instead of using a fixed canvas.
func (r *rodSession) measure(page *rod.Page, deadline time.Time) (*proto.DOMRect, error) {
	el, err := page.Timeout(time.Until(deadline)).Element("#content")
	if err != nil {
		return nil, r.fail(ErrCaptureFailed, fmt.Errorf("locating content: %v", err))
	}
	shape, err := el.Shape()
	if err != nil {
		return nil, r.fail(ErrCaptureFailed, fmt.Errorf("measuring content: %v", err))
	}
	box := shape.Box()
	if box == nil || box.Width <= 0 || box.Height <= 0 {
		return nil, r.fail(ErrCaptureFailed, errors.New("content has empty bounding box"))
	}
	return box, nil
}
