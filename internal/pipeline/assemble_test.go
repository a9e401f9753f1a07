package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestValidateBackground(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		color   string
		wantErr bool
	}{
		{
			name:  "empty means default",
			color: "",
		},
		{
			name:  "short hex",
			color: "#fff",
		},
		{
			name:  "full hex",
			color: "#FDFBF0",
		},
		{
			name:  "hex with alpha",
			color: "#FDFBF0CC",
		},
		{
			name:  "named color",
			color: "ivory",
		},
		{
			name:  "named color case insensitive",
			color: "White",
		},
		{
			name:    "missing hash",
			color:   "FDFBF0",
			wantErr: true,
		},
		{
			name:    "bad length",
			color:   "#FDFB",
			wantErr: true,
		},
		{
			name:    "not a color",
			color:   "url(javascript:alert(1))",
			wantErr: true,
		},
		{
			name:    "unknown name",
			color:   "blurple",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateBackground(tt.color)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBackground(%q) error = %v, wantErr %v", tt.color, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidBackground) {
				t.Errorf("error %v does not wrap ErrInvalidBackground", err)
			}
		})
	}
}

func TestAssembleInvalidBackgroundFails(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	var n Normalizer

	doc, err := a.Assemble(context.Background(), n.Normalize("hello"), "nope")
	if !errors.Is(err, ErrInvalidBackground) {
		t.Fatalf("err = %v, want ErrInvalidBackground", err)
	}
	if doc != nil {
		t.Error("partial document returned alongside error")
	}
}

func TestAssembleBackgroundAppliedExactly(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	var n Normalizer

	doc, err := a.Assemble(context.Background(), n.Normalize("hello"), "#ABCDEF")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if doc.Background != "#ABCDEF" {
		t.Errorf("Background = %q, want %q", doc.Background, "#ABCDEF")
	}
	if !strings.Contains(doc.HTML, "--bg-color: #ABCDEF;") {
		t.Errorf("document does not declare the background:\n%s", doc.HTML)
	}
}

func TestAssembleDefaultBackground(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	var n Normalizer

	doc, err := a.Assemble(context.Background(), n.Normalize("hello"), "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if doc.Background != DefaultBackground {
		t.Errorf("Background = %q, want default %q", doc.Background, DefaultBackground)
	}
}

func TestAssembleEnginesScopedToContent(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	var n Normalizer

	tests := []struct {
		name        string
		input       string
		wantMathJax bool
		wantTikZJax bool
		wantMermaid bool
	}{
		{
			name:  "plain prose loads no engines",
			input: "just words",
		},
		{
			name:        "math loads mathjax only",
			input:       "$E=mc^2$",
			wantMathJax: true,
		},
		{
			name:        "tikz loads tikzjax only",
			input:       "\\begin{tikzpicture}\n\\draw (0,0) -- (1,1);\n\\end{tikzpicture}",
			wantTikZJax: true,
		},
		{
			name:        "mermaid loads mermaid only",
			input:       "```mermaid\ngraph TD\nA-->B\n```",
			wantMermaid: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc, err := a.Assemble(context.Background(), n.Normalize(tt.input), "")
			if err != nil {
				t.Fatalf("Assemble error: %v", err)
			}

			if got := strings.Contains(doc.HTML, "MathJax"); got != tt.wantMathJax {
				t.Errorf("MathJax injected = %v, want %v", got, tt.wantMathJax)
			}
			if got := strings.Contains(doc.HTML, "tikzjax"); got != tt.wantTikZJax {
				t.Errorf("TikZJax injected = %v, want %v", got, tt.wantTikZJax)
			}
			// The engine script URL, not the word itself: the diagram
			// watcher mentions mermaid containers even for tikz documents.
			if got := strings.Contains(doc.HTML, "mermaid.min.js"); got != tt.wantMermaid {
				t.Errorf("mermaid engine injected = %v, want %v", got, tt.wantMermaid)
			}
		})
	}
}

func TestAssembleMathSurvivesMarkdown(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	var n Normalizer

	// Underscores and asterisks inside math must come through unescaped and
	// uninterpreted by the Markdown layer.
	doc, err := a.Assemble(context.Background(), n.Normalize(`value $x_i * y_j$ here`), "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if !strings.Contains(doc.HTML, `$x_i * y_j$`) {
		t.Errorf("math span altered by Markdown pass:\n%s", doc.HTML)
	}
	if strings.Contains(doc.HTML, "<em>") && strings.Contains(doc.HTML, "x_i") {
		t.Errorf("math content interpreted as emphasis:\n%s", doc.HTML)
	}
}

func TestAssembleDiagramContainerSurvives(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	var n Normalizer

	doc, err := a.Assemble(context.Background(), n.Normalize("\\begin{tikzpicture}\n\\draw (0,0) -- (1,1);\n\\end{tikzpicture}"), "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if !strings.Contains(doc.HTML, `<script type="text/tikz">`) {
		t.Errorf("tikz script escaped or lost:\n%s", doc.HTML)
	}
	if doc.DiagramCount != 1 {
		t.Errorf("DiagramCount = %d, want 1", doc.DiagramCount)
	}
	if !doc.HasTypesetting() {
		t.Error("HasTypesetting = false with a diagram present")
	}
}

func TestAssembleFencedTikZBecomesDiagram(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	var n Normalizer

	// Generators fence their diagram source. The fence must unwrap during
	// normalization, or assembly treats the container as literal code.
	input := "```tikz\n\\begin{tikzpicture}\n\\draw (0,0) -- (1,1);\n\\end{tikzpicture}\n```"
	doc, err := a.Assemble(context.Background(), n.Normalize(input), "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if doc.DiagramCount != 1 {
		t.Errorf("DiagramCount = %d, want 1", doc.DiagramCount)
	}
	if !strings.Contains(doc.HTML, `<script type="text/tikz">`) {
		t.Errorf("tikz script escaped or lost:\n%s", doc.HTML)
	}
	if strings.Contains(doc.HTML, "&lt;div") {
		t.Errorf("diagram container escaped as code text:\n%s", doc.HTML)
	}
}

func TestAssembleMathInsideDiagramPreserved(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	var n Normalizer

	// Node labels use inline math. The span must ride inside the diagram
	// container untouched, not get masked out from under it.
	input := "\\begin{tikzpicture}\n\\node at (0,0) {$x_1$};\n\\end{tikzpicture}"
	doc, err := a.Assemble(context.Background(), n.Normalize(input), "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if !strings.Contains(doc.HTML, "{$x_1$}") {
		t.Errorf("math span lost from diagram source:\n%s", doc.HTML)
	}
	if strings.Contains(doc.HTML, "MATHBLOCK") {
		t.Errorf("masking placeholder leaked into the document:\n%s", doc.HTML)
	}
	if doc.DiagramCount != 1 {
		t.Errorf("DiagramCount = %d, want 1", doc.DiagramCount)
	}
}

func TestAssembleCodeBlockHighlighted(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	var n Normalizer

	doc, err := a.Assemble(context.Background(), n.Normalize("```python\nprint(1)\n```"), "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if !strings.Contains(doc.HTML, "print") {
		t.Errorf("code content lost:\n%s", doc.HTML)
	}
	if doc.HasMath || doc.DiagramCount != 0 {
		t.Errorf("code-only document misclassified: math=%v diagrams=%d", doc.HasMath, doc.DiagramCount)
	}
}

func TestAssembleNoTypesettingForPlainProse(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	var n Normalizer

	doc, err := a.Assemble(context.Background(), n.Normalize("plain words"), "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if doc.HasTypesetting() {
		t.Error("HasTypesetting = true for plain prose")
	}
}

func TestAssembleContextCancelled(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	var n Normalizer

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Assemble(ctx, n.Normalize("hello"), ""); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
