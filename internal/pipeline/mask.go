package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder formats for spans masked away from the Markdown pass.
// Plain alphanumeric tokens survive Markdown conversion as ordinary text,
// so the original spans can be restored verbatim afterwards.
const (
	codePlaceholder    = "CODEBLOCK%dCODEBLOCK"
	mathPlaceholder    = "MATHBLOCK%dMATHBLOCK"
	diagramPlaceholder = "DIAGRAMBLOCK%dDIAGRAMBLOCK"
)

// diagramBlock matches the containers produced by diagram conversion.
var diagramBlock = regexp.MustCompile(`(?s)<div class="diagram"[^>]*>.*?</div>`)

// maskCodeBlocks replaces fenced code blocks with placeholders.
// Code is masked first so $ characters inside it are invisible to math
// masking; the blocks are put back before the Markdown pass runs.
func maskCodeBlocks(text string) (string, []string) {
	return maskPattern(text, fencedCodeBlock, codePlaceholder)
}

// maskMathSpans replaces math spans with placeholders so characters
// meaningful to Markdown (_, *, #) inside math are neither escaped nor
// interpreted. Spans are restored verbatim after conversion. Unpaired
// delimiters match nothing and stay behind as literal text.
func maskMathSpans(text string) (string, []string) {
	var blocks []string
	for _, re := range []*regexp.Regexp{displayBracketMath, inlineParenMath, displayDollarMath, inlineDollarMath} {
		text = re.ReplaceAllStringFunc(text, func(span string) string {
			blocks = append(blocks, span)
			return fmt.Sprintf(mathPlaceholder, len(blocks)-1)
		})
	}
	return text, blocks
}

// maskDiagramBlocks replaces diagram containers with placeholders so the
// Markdown renderer, which escapes raw HTML, cannot mangle them.
func maskDiagramBlocks(text string) (string, []string) {
	return maskPattern(text, diagramBlock, diagramPlaceholder)
}

func maskPattern(text string, re *regexp.Regexp, placeholder string) (string, []string) {
	var blocks []string
	masked := re.ReplaceAllStringFunc(text, func(block string) string {
		blocks = append(blocks, block)
		return fmt.Sprintf(placeholder, len(blocks)-1)
	})
	return masked, blocks
}

// restoreCodeBlocks puts masked code blocks back.
func restoreCodeBlocks(text string, blocks []string) string {
	return restoreBlocks(text, codePlaceholder, blocks)
}

// restoreMathSpans puts masked math spans back verbatim.
func restoreMathSpans(html string, blocks []string) string {
	return restoreBlocks(html, mathPlaceholder, blocks)
}

// restoreDiagramBlocks puts masked diagram containers back. When a
// placeholder was wrapped in its own paragraph, the whole paragraph is
// replaced so the container is not left nested inside a <p>.
func restoreDiagramBlocks(html string, blocks []string) string {
	for i, block := range blocks {
		placeholder := fmt.Sprintf(diagramPlaceholder, i)
		wrapped := "<p>" + placeholder + "</p>"
		if strings.Contains(html, wrapped) {
			html = strings.Replace(html, wrapped, block, 1)
			continue
		}
		html = strings.Replace(html, placeholder, block, 1)
	}
	return html
}

func restoreBlocks(text, placeholder string, blocks []string) string {
	for i, block := range blocks {
		text = strings.Replace(text, fmt.Sprintf(placeholder, i), block, 1)
	}
	return text
}
