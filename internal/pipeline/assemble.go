package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"github.com/willixrain/go-mathimg/internal/assets"
)

// DefaultBackground is the page background used when none is configured.
const DefaultBackground = "#FDFBF0"

// ErrInvalidBackground indicates the background color specification is not
// a valid hex color or known color name.
var ErrInvalidBackground = errors.New("invalid background color")

// hexColor matches #RGB, #RRGGBB, and #RRGGBBAA.
var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// namedColors lists the CSS color names accepted for backgrounds.
var namedColors = map[string]bool{
	"white": true, "black": true, "ivory": true, "beige": true,
	"linen": true, "snow": true, "seashell": true, "cornsilk": true,
	"lavender": true, "aliceblue": true, "honeydew": true, "mintcream": true,
	"oldlace": true, "floralwhite": true, "ghostwhite": true,
	"whitesmoke": true, "azure": true, "transparent": true,
}

// ValidateBackground checks that color is a usable CSS background value.
// Empty means "use the default" and is valid.
func ValidateBackground(color string) error {
	if color == "" {
		return nil
	}
	if hexColor.MatchString(color) {
		return nil
	}
	if namedColors[strings.ToLower(color)] {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidBackground, color)
}

// AssembledDocument is a complete, standalone HTML document ready for
// rendering. Engine references are already resolved; nothing else is fetched
// at render time.
type AssembledDocument struct {
	HTML         string
	Background   string
	HasMath      bool
	DiagramCount int
}

// HasTypesetting reports whether any typesetting engine must signal
// completion before capture.
func (d *AssembledDocument) HasTypesetting() bool {
	return d.HasMath || d.DiagramCount > 0
}

// Assembler merges a normalized document into a renderable page: Markdown to
// HTML conversion, engine activation scoped to what the content needs, and
// background styling. Assemblers are stateless across calls; nothing from
// one request leaks into the next.
type Assembler struct {
	converter HTMLConverter
	tmpl      *template.Template
	engines   assets.Engines
}

// pageData feeds the embedded page template.
type pageData struct {
	Background  template.CSS
	Stylesheet  template.CSS
	Body        template.HTML
	HasMath     bool
	HasTikZ     bool
	HasMermaid  bool
	HasDiagrams bool
	Engines     assets.Engines
}

// NewAssembler creates an Assembler using the embedded page template and the
// resolved engine locations. Panics if the embedded template does not parse
// (programmer error).
func NewAssembler() *Assembler {
	tmpl, err := template.New("page").Parse(assets.PageTemplate())
	if err != nil {
		panic("mathimg: embedded page template does not parse: " + err.Error())
	}
	return &Assembler{
		converter: NewGoldmarkConverter(),
		tmpl:      tmpl,
		engines:   assets.ResolveEngines(),
	}
}

// Assemble produces the renderable document for one normalized input.
// An invalid background fails synchronously; no partial document is
// returned. Math spans and diagram containers are masked away from the
// Markdown pass and restored verbatim afterwards.
func (a *Assembler) Assemble(ctx context.Context, doc NormalizedDocument, background string) (*AssembledDocument, error) {
	if err := ValidateBackground(background); err != nil {
		return nil, err
	}
	if background == "" {
		background = DefaultBackground
	}

	// Diagrams are masked before math: TikZ node labels carry $...$ spans,
	// and those must travel inside their container, not get masked out of it.
	body, codeBlocks := maskCodeBlocks(doc.Body)
	body, diagramBlocks := maskDiagramBlocks(body)
	body, mathBlocks := maskMathSpans(body)

	// Code goes back before conversion so the highlighter sees it; math and
	// diagrams go back after, untouched by Markdown.
	body = restoreCodeBlocks(body, codeBlocks)

	fragment, err := a.converter.ToHTML(ctx, body)
	if err != nil {
		return nil, err
	}

	fragment = restoreMathSpans(fragment, mathBlocks)
	fragment = restoreDiagramBlocks(fragment, diagramBlocks)

	data := pageData{
		Background:  template.CSS(background),
		Stylesheet:  template.CSS(assets.BaseStylesheet()),
		Body:        template.HTML(fragment),
		HasMath:     doc.HasMath,
		HasTikZ:     doc.HasTikZ,
		HasMermaid:  doc.HasMermaid,
		HasDiagrams: doc.HasDiagrams(),
		Engines:     a.engines,
	}

	var buf bytes.Buffer
	if err := a.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: executing page template: %v", ErrHTMLConversion, err)
	}

	return &AssembledDocument{
		HTML:         buf.String(),
		Background:   background,
		HasMath:      doc.HasMath,
		DiagramCount: len(diagramBlocks),
	}, nil
}
