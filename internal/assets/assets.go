// Package assets provides the embedded page skeleton, base stylesheet, and
// typesetting engine locations used by document assembly.
//
// Engine scripts are referenced by location only. Resolving a location to a
// working script (bundled file or CDN) happens before assembly; this package
// just records where each engine lives and lets deployments override the
// defaults through environment variables.
package assets

import (
	_ "embed"
	"os"
)

//go:embed template.html
var pageTemplate string

//go:embed style.css
var baseStylesheet string

// Default engine locations. Overridable via environment for air-gapped or
// bundled-asset deployments.
const (
	defaultMathJaxURL = "https://cdn.jsdelivr.net/npm/mathjax@3/es5/tex-chtml.js"
	defaultTikZJaxJS  = "https://tikzjax.com/v1/tikzjax.js"
	defaultTikZJaxCSS = "https://tikzjax.com/v1/fonts.css"
	defaultMermaidURL = "https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.min.js"
)

// Environment variables overriding engine locations.
const (
	EnvMathJaxURL = "MATHIMG_MATHJAX_URL"
	EnvTikZJaxJS  = "MATHIMG_TIKZJAX_JS"
	EnvTikZJaxCSS = "MATHIMG_TIKZJAX_CSS"
	EnvMermaidURL = "MATHIMG_MERMAID_URL"
)

// Engines holds resolved typesetting engine locations.
type Engines struct {
	MathJaxURL string
	TikZJaxJS  string
	TikZJaxCSS string
	MermaidURL string
}

// ResolveEngines returns engine locations, preferring environment overrides
// over the built-in CDN defaults.
func ResolveEngines() Engines {
	return Engines{
		MathJaxURL: envOr(EnvMathJaxURL, defaultMathJaxURL),
		TikZJaxJS:  envOr(EnvTikZJaxJS, defaultTikZJaxJS),
		TikZJaxCSS: envOr(EnvTikZJaxCSS, defaultTikZJaxCSS),
		MermaidURL: envOr(EnvMermaidURL, defaultMermaidURL),
	}
}

// PageTemplate returns the HTML page skeleton used by the assembler.
func PageTemplate() string {
	return pageTemplate
}

// BaseStylesheet returns the base CSS applied to every assembled document.
func BaseStylesheet() string {
	return baseStylesheet
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
