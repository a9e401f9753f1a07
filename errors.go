package mathimg

import (
	"errors"

	"github.com/willixrain/go-mathimg/internal/pipeline"
)

// Sentinel errors for library operations. The assembly errors are shared
// with the pipeline package so errors.Is works across the API boundary.
var (
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrInvalidBackground = pipeline.ErrInvalidBackground
	ErrHTMLConversion    = pipeline.ErrHTMLConversion

	// Render driver errors.
	ErrBrowserConnect    = errors.New("failed to connect to browser")
	ErrPageCreate        = errors.New("failed to create browser page")
	ErrPageLoad          = errors.New("failed to load page")
	ErrRenderTimeout     = errors.New("typesetting did not complete within budget")
	ErrEngineCrash       = errors.New("render session became unusable")
	ErrNoContentRendered = errors.New("no math or diagram content rendered")
	ErrCaptureFailed     = errors.New("screenshot capture failed")

	// Pool errors.
	ErrPoolClosed = errors.New("session pool is closed")
)
