package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// Precompiled regex patterns for performance.
var (
	// Line ending normalization
	crlfOrCR = regexp.MustCompile(`\r\n?`)

	// ATX heading missing the space after its marker
	headingMissingSpace = regexp.MustCompile(`^(#{1,6})([^#\s])`)

	// Heading and list detection
	headingPattern       = regexp.MustCompile(`^#{1,6}\s`)
	unorderedListPattern = regexp.MustCompile(`^[-*]\s`)
	orderedListPattern   = regexp.MustCompile(`^[0-9]+\.\s`)

	// Math span shapes, nearest-delimiter pairing. Single-dollar spans never
	// cross lines; the other three shapes may.
	displayBracketMath = regexp.MustCompile(`\\\[[\s\S]*?\\\]`)
	inlineParenMath    = regexp.MustCompile(`\\\([\s\S]*?\\\)`)
	displayDollarMath  = regexp.MustCompile(`(?s)\$\$.*?\$\$`)
	inlineDollarMath   = regexp.MustCompile(`\$[^\n$]+\$`)

	// Fenced code blocks
	fencedCodeBlock = regexp.MustCompile("(?s)```.*?```")
	fenceLine       = regexp.MustCompile("^\\s*(```|~~~)")

	// TikZ comments sharing a line with the environment terminator confuse
	// the in-browser compiler; force the terminator onto its own line.
	tikzCommentBeforeEnd   = regexp.MustCompile(`(%[^\n]*?)\\end\{tikzpicture\}`)
	tikzcdCommentBeforeEnd = regexp.MustCompile(`(%[^\n]*?)\\end\{tikzcd\}`)

	// Structural lint patterns
	fracPattern = regexp.MustCompile(`\\frac\{([^}]*)\}(\{[^}]*\})?`)
)

// environment begin/end pairs checked by lintStructure.
var lintEnvironments = []string{"tikzpicture", "tikzcd", "equation", "align"}

// NormalizedDocument is the deterministic result of normalizing one raw
// input. Body is Markdown with math spans intact and diagram sources already
// wrapped in their renderable containers.
type NormalizedDocument struct {
	Body       string
	Libraries  []string // TikZ libraries required by the embedded diagrams, sorted
	HasMath    bool
	HasTikZ    bool
	HasMermaid bool
	Notes      []string // non-fatal structural issues found in the input
}

// HasDiagrams reports whether any diagram engine is needed.
func (d *NormalizedDocument) HasDiagrams() bool {
	return d.HasTikZ || d.HasMermaid
}

// Normalizer repairs malformed markup and classifies embedded content.
// Normalize is a pure function of its input: no I/O, no shared state.
type Normalizer struct{}

// Normalize repairs the raw text and classifies its embedded content.
// It is total: any input produces a document, and spans that cannot be
// confidently repaired are kept as literal text rather than dropped.
func (n *Normalizer) Normalize(raw string) NormalizedDocument {
	text := normalizeLineEndings(raw)

	// Containers from a previous normalization pass are masked through the
	// whole repair so their embedded documents are not converted again.
	// Their kind and libraries still count toward classification.
	text, existing := maskDiagramBlocks(text)
	existingTikz, existingMermaid, existingLibs := classifyDiagramBlocks(existing)

	text = unescapeLiteralNewlines(text)

	notes := lintStructure(text)

	text = fixDiagramComments(text)
	text = convertLatexProse(text)
	text = convertLatexLists(text)
	text = convertLatexTables(text)

	text, libraries, tikzCount := convertTikZ(text)
	text, mermaidCount := convertMermaid(text)

	text = closeUnbalancedFences(text)
	text = fixBlockSpacing(text)

	text = restoreBlocks(text, diagramPlaceholder, existing)
	libraries = mergeLibraries(libraries, existingLibs)

	return NormalizedDocument{
		Body:       text,
		Libraries:  libraries,
		HasMath:    detectMath(text),
		HasTikZ:    tikzCount+existingTikz > 0,
		HasMermaid: mermaidCount+existingMermaid > 0,
		Notes:      notes,
	}
}

// normalizeLineEndings converts \r\n and \r to \n.
func normalizeLineEndings(content string) string {
	return crlfOrCR.ReplaceAllString(content, "\n")
}

// unescapeLiteralNewlines converts literal two-character "\n" sequences into
// real newlines. Sequences followed by a letter are left alone so LaTeX
// commands like \nabla and \neq survive.
func unescapeLiteralNewlines(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for i := 0; i < len(content); {
		if content[i] == '\\' && i+1 < len(content) && content[i+1] == 'n' {
			if i+2 >= len(content) || !isASCIILetter(content[i+2]) {
				b.WriteByte('\n')
				i += 2
				continue
			}
		}
		b.WriteByte(content[i])
		i++
	}
	return b.String()
}

func isASCIILetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// fixDiagramComments moves TikZ environment terminators off comment lines.
func fixDiagramComments(content string) string {
	content = tikzCommentBeforeEnd.ReplaceAllString(content, "$1\n\\end{tikzpicture}")
	content = tikzcdCommentBeforeEnd.ReplaceAllString(content, "$1\n\\end{tikzcd}")
	return content
}

// closeUnbalancedFences appends a closing fence when a fenced code block is
// still open at end of input. Without this an unterminated fence swallows
// the rest of the document into one code block.
func closeUnbalancedFences(content string) string {
	open := ""
	for _, line := range strings.Split(content, "\n") {
		m := fenceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if open == "" {
			open = m[1]
		} else if m[1] == open {
			open = ""
		}
	}
	if open == "" {
		return content
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + open
}

// fixBlockSpacing repairs heading markers missing their space and inserts
// the blank line CommonMark requires before headings and list items.
// Lines inside fenced code blocks are left untouched.
func fixBlockSpacing(content string) string {
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines))
	inCodeBlock := false

	for _, line := range lines {
		stripped := strings.TrimSpace(line)

		if strings.HasPrefix(stripped, "```") || strings.HasPrefix(stripped, "~~~") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
			continue
		}
		if inCodeBlock {
			result = append(result, line)
			continue
		}

		if m := headingMissingSpace.FindStringSubmatch(stripped); m != nil {
			line = m[1] + " " + stripped[len(m[1]):]
			stripped = line
		}

		isHeading := headingPattern.MatchString(stripped)
		isList := isListItem(stripped)

		if (isHeading || isList) && len(result) > 0 {
			prev := strings.TrimSpace(result[len(result)-1])
			if prev != "" && (isHeading || !isListItem(prev)) {
				result = append(result, "")
			}
		}

		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

func isListItem(line string) bool {
	return unorderedListPattern.MatchString(line) || orderedListPattern.MatchString(line)
}

// detectMath reports whether any math span survives outside code blocks and
// diagram containers.
func detectMath(body string) bool {
	masked, _ := maskCodeBlocks(body)
	masked, _ = maskDiagramBlocks(masked)
	return displayBracketMath.MatchString(masked) ||
		inlineParenMath.MatchString(masked) ||
		displayDollarMath.MatchString(masked) ||
		inlineDollarMath.MatchString(masked)
}

// lintStructure runs non-fatal structural checks over the raw text.
// Findings describe likely author mistakes; normalization proceeds
// regardless, so content is never rejected here.
func lintStructure(text string) []string {
	var notes []string

	clean := strings.ReplaceAll(text, `\{`, "")
	clean = strings.ReplaceAll(clean, `\}`, "")
	if open, closed := strings.Count(clean, "{"), strings.Count(clean, "}"); open != closed {
		notes = append(notes, fmt.Sprintf("unbalanced braces: %d open, %d close", open, closed))
	}

	if d := strings.Count(text, "$") - strings.Count(text, `\$`); d%2 != 0 {
		notes = append(notes, "odd number of $ delimiters, a math span may be unterminated")
	}

	for _, m := range fracPattern.FindAllStringSubmatch(text, -1) {
		if m[2] == "" {
			notes = append(notes, fmt.Sprintf(`\frac missing second argument: \frac{%s}`, m[1]))
		}
	}

	for _, env := range lintEnvironments {
		begin := strings.Count(text, `\begin{`+env+`}`)
		end := strings.Count(text, `\end{`+env+`}`)
		if begin != end {
			notes = append(notes, fmt.Sprintf(`environment %s unbalanced: %d \begin, %d \end`, env, begin, end))
		}
	}

	return notes
}
