package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/willixrain/go-mathimg/internal/texeval"
)

// Diagram environment patterns.
var (
	tikzPictureEnv = regexp.MustCompile(`\\begin\{tikzpicture\}[\s\S]*?\\end\{tikzpicture\}`)
	tikzCDEnv      = regexp.MustCompile(`\\begin\{tikzcd\}[\s\S]*?\\end\{tikzcd\}`)
	circuitikzEnv  = regexp.MustCompile(`\\begin\{circuitikz\}[\s\S]*?\\end\{circuitikz\}`)
	chemfigCmd     = regexp.MustCompile(`\\chemfig\{(?:[^{}]|\{(?:[^{}]|\{[^{}]*\})*\})*\}`)

	mermaidFence = regexp.MustCompile("```mermaid[ \t]*\n([\\s\\S]*?)```")
	tikzFence    = regexp.MustCompile("```tikz[ \t]*\n([\\s\\S]*?)```")

	// plot commands the in-browser TikZ engine cannot evaluate
	plotCommand   = regexp.MustCompile(`\\draw\s*\[([^\]]*)\]\s*plot\s*\(\s*([^,]+)\s*,\s*\{([^}]+)\}\s*\)\s*;`)
	domainParam   = regexp.MustCompile(`domain\s*=\s*(-?[\d.]+)\s*:\s*(-?[\d.]+)`)
	samplesParam  = regexp.MustCompile(`samples\s*=\s*(\d+)`)
	domainRemove  = regexp.MustCompile(`,?\s*domain\s*=\s*-?[\d.]+\s*:\s*-?[\d.]+`)
	samplesRemove = regexp.MustCompile(`,?\s*samples\s*=\s*\d+`)

	logCall = regexp.MustCompile(`\blog\s*\(`)
	lnCall  = regexp.MustCompile(`\bln\s*\(`)
)

// simpleMacros expands shorthand macros common in model output. Matching is
// bounded so \R does not fire inside \Rightarrow.
var simpleMacros = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\\([ZNQRCFPA])([^a-zA-Z]|$)`), `\mathbb{$1}$2`},
	{regexp.MustCompile(`\\eps([^a-zA-Z]|$)`), `\varepsilon$1`},
	{regexp.MustCompile(`\\vphi([^a-zA-Z]|$)`), `\varphi$1`},
}

const defaultPlotSamples = 50

// convertTikZ rewrites TikZ-family environments as renderable diagram
// containers and reports the TikZ libraries those diagrams require along
// with the number of containers produced.
func convertTikZ(text string) (string, []string, int) {
	libSet := map[string]bool{}
	count := 0

	// Fenced blocks tagged tikz hold diagram source, not code. Strip the
	// fence so the environment inside converts like bare TikZ instead of
	// surviving as a literal code block.
	text = tikzFence.ReplaceAllStringFunc(text, func(fence string) string {
		m := tikzFence.FindStringSubmatch(fence)
		inner := strings.TrimSpace(m[1])
		if inner == "" {
			return ""
		}
		return "\n" + inner + "\n"
	})

	convert := func(env string) string {
		block, libs := convertTikZBlock(env)
		for _, l := range libs {
			libSet[l] = true
		}
		count++
		return block
	}

	text = tikzPictureEnv.ReplaceAllStringFunc(text, convert)
	text = tikzCDEnv.ReplaceAllStringFunc(text, convert)
	text = circuitikzEnv.ReplaceAllStringFunc(text, convert)

	// Standalone chemfig commands, only when no environment was already
	// converted (a converted environment may legitimately contain chemfig).
	if strings.Contains(text, `\chemfig{`) && !strings.Contains(text, `<script type="text/tikz">`) {
		text = chemfigCmd.ReplaceAllStringFunc(text, func(cmd string) string {
			count++
			return wrapDiagram("tikz", buildTikzDocument(cmd, []string{"amsmath", "amsfonts", "amssymb", "chemfig"}, nil))
		})
	}

	libraries := make([]string, 0, len(libSet))
	for l := range libSet {
		libraries = append(libraries, l)
	}
	sort.Strings(libraries)

	return text, libraries, count
}

// usetikzlibraryDecl recovers library declarations from already-built
// diagram documents.
var usetikzlibraryDecl = regexp.MustCompile(`\\usetikzlibrary\{([^}]*)\}`)

// classifyDiagramBlocks counts containers produced by a previous
// normalization pass and recovers the libraries their documents declare, so
// re-normalized output classifies the same way as the original input.
func classifyDiagramBlocks(blocks []string) (tikz, mermaid int, libraries []string) {
	libSet := map[string]bool{}
	for _, block := range blocks {
		if strings.Contains(block, `data-kind="mermaid"`) {
			mermaid++
			continue
		}
		tikz++
		for _, m := range usetikzlibraryDecl.FindAllStringSubmatch(block, -1) {
			for _, lib := range strings.Split(m[1], ",") {
				if lib = strings.TrimSpace(lib); lib != "" {
					libSet[lib] = true
				}
			}
		}
	}
	for l := range libSet {
		libraries = append(libraries, l)
	}
	sort.Strings(libraries)
	return tikz, mermaid, libraries
}

// mergeLibraries unions two sorted library lists.
func mergeLibraries(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	set := map[string]bool{}
	for _, l := range a {
		set[l] = true
	}
	for _, l := range b {
		set[l] = true
	}
	merged := make([]string, 0, len(set))
	for l := range set {
		merged = append(merged, l)
	}
	sort.Strings(merged)
	return merged
}

// convertTikZBlock converts one TikZ environment into a diagram container
// holding a complete standalone LaTeX document.
func convertTikZBlock(env string) (string, []string) {
	for _, m := range simpleMacros {
		env = m.re.ReplaceAllString(env, m.replacement)
	}

	env = expandPlots(env)

	packages := detectPackages(env)
	libraries := detectLibraries(env)

	return wrapDiagram("tikz", buildTikzDocument(env, packages, libraries)), libraries
}

func wrapDiagram(kind, body string) string {
	return fmt.Sprintf("<div class=\"diagram\" data-kind=%q data-state=\"pending\"><script type=\"text/tikz\">\n%s\n</script></div>", kind, body)
}

// detectPackages scans diagram source for constructs that need extra LaTeX
// packages. Unknown constructs add nothing: the diagram still attempts to
// render with the base packages.
func detectPackages(src string) []string {
	packages := []string{"amsmath", "amsfonts", "amssymb"}

	if strings.Contains(src, "chemfig") || strings.Contains(src, "chemname") {
		packages = append(packages, "chemfig")
	}
	if strings.Contains(src, "tikzcd") || strings.Contains(src, `\arrow`) {
		packages = append(packages, "tikz-cd")
	}
	if strings.Contains(src, "circuitikz") || strings.Contains(src, "to[") {
		packages = append(packages, "circuitikz")
	}
	if strings.Contains(src, "axis") || strings.Contains(src, "addplot") {
		packages = append(packages, "pgfplots")
	}
	if strings.Contains(src, "tdplot") || strings.Contains(strings.ToLower(src), "3d") {
		packages = append(packages, "tikz-3dplot")
	}
	if strings.Contains(src, "array") || strings.Contains(src, "tabular") {
		packages = append(packages, "array")
	}

	return packages
}

// detectLibraries scans diagram source for constructs requiring
// \usetikzlibrary declarations.
func detectLibraries(src string) []string {
	var libs []string
	add := func(lib string) {
		for _, l := range libs {
			if l == lib {
				return
			}
		}
		libs = append(libs, lib)
	}

	if strings.Contains(src, "Stealth") || strings.Contains(src, "Latex") {
		add("arrows.meta")
	}
	if strings.Contains(src, "calc") || strings.Contains(src, "($") {
		add("calc")
	}
	if strings.Contains(src, "positioning") || strings.Contains(src, " of=") || strings.Contains(src, " of ") {
		add("positioning")
	}
	if strings.Contains(src, "ellipse") || strings.Contains(src, "rectangle") || strings.Contains(src, "diamond") {
		add("shapes.geometric")
	}
	if strings.Contains(src, "shapes") {
		add("shapes")
	}
	if strings.Contains(src, "background") {
		add("backgrounds")
	}
	if strings.Contains(src, "fit=") {
		add("fit")
	}
	if strings.Contains(src, "pgfplots") {
		add("calc")
	}

	return libs
}

// buildTikzDocument wraps diagram source in a complete LaTeX document with
// the detected packages and libraries.
func buildTikzDocument(src string, packages, libraries []string) string {
	var b strings.Builder

	if containsCJK(src) {
		// The in-browser engine ships no CJK fonts; leave a trace for anyone
		// debugging a diagram with missing glyphs.
		b.WriteString("% WARNING: CJK text may not render, no CJK fonts available\n")
	}

	for _, pkg := range packages {
		fmt.Fprintf(&b, "\\usepackage{%s}\n", pkg)
	}
	for _, pkg := range packages {
		if pkg == "pgfplots" {
			b.WriteString("\\pgfplotsset{compat=1.16}\n")
			break
		}
	}
	if len(libraries) > 0 {
		fmt.Fprintf(&b, "\\usetikzlibrary{%s}\n", strings.Join(libraries, ","))
	}

	b.WriteString("\\begin{document}\n")
	b.WriteString(src)
	b.WriteString("\n\\end{document}")

	return b.String()
}

func containsCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}

// expandPlots replaces \draw ... plot commands with sampled coordinate
// paths, since the in-browser engine lacks the plot function. Commands
// without a domain, and plots yielding no finite points, are preserved or
// commented rather than dropped.
func expandPlots(src string) string {
	src = cleanHTMLEntities(src)

	return plotCommand.ReplaceAllStringFunc(src, func(cmd string) string {
		m := plotCommand.FindStringSubmatch(cmd)
		if m == nil {
			return cmd
		}
		options, xExpr, yExpr := m[1], m[2], m[3]

		dm := domainParam.FindStringSubmatch(options)
		if dm == nil {
			return cmd
		}
		xMin, errMin := strconv.ParseFloat(dm[1], 64)
		xMax, errMax := strconv.ParseFloat(dm[2], 64)
		if errMin != nil || errMax != nil {
			return cmd
		}

		samples := defaultPlotSamples
		if sm := samplesParam.FindStringSubmatch(options); sm != nil {
			if n, err := strconv.Atoi(sm[1]); err == nil && n > 1 {
				samples = n
			}
		}

		points := samplePlotPoints(xMin, xMax, samples, xExpr, yExpr)
		if len(points) == 0 {
			return "% plot produced no finite points: " + strings.TrimSpace(cmd)
		}

		style := extractStyleOptions(options)
		return fmt.Sprintf(`\draw[%s] %s;`, style, strings.Join(points, " -- "))
	})
}

func cleanHTMLEntities(s string) string {
	r := strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">")
	return r.Replace(s)
}

// extractStyleOptions removes domain and samples from the option list,
// keeping style options like color and thickness.
func extractStyleOptions(options string) string {
	style := domainRemove.ReplaceAllString(options, "")
	style = samplesRemove.ReplaceAllString(style, "")
	return strings.Trim(style, " ,")
}

// samplePlotPoints evaluates the x and y expressions at evenly spaced
// sample positions, skipping points that do not evaluate to finite values.
func samplePlotPoints(xMin, xMax float64, samples int, xExpr, yExpr string) []string {
	xExpr = rewritePlotExpr(xExpr)
	yExpr = rewritePlotExpr(yExpr)

	step := (xMax - xMin) / float64(samples-1)
	points := make([]string, 0, samples)

	for i := 0; i < samples; i++ {
		x := xMin + float64(i)*step

		xv, errX := texeval.Eval(xExpr, x)
		yv, errY := texeval.Eval(yExpr, x)
		if errX != nil || errY != nil {
			continue
		}
		if math.IsNaN(xv) || math.IsNaN(yv) || math.IsInf(xv, 0) || math.IsInf(yv, 0) {
			continue
		}

		points = append(points, fmt.Sprintf("(%.4f,%.4f)", xv, yv))
	}

	return points
}

// rewritePlotExpr maps TikZ expression spelling onto the evaluator's:
// \x becomes the variable x, \pi the constant, log the common logarithm and
// ln the natural one.
func rewritePlotExpr(expr string) string {
	expr = strings.ReplaceAll(expr, `\x`, "x")
	expr = strings.ReplaceAll(expr, `\pi`, "pi")
	expr = logCall.ReplaceAllString(expr, "log10(")
	expr = lnCall.ReplaceAllString(expr, "log(")
	return strings.TrimSpace(expr)
}

// convertMermaid rewrites mermaid code fences as diagram containers that the
// mermaid engine renders in place. Empty fences are dropped.
func convertMermaid(text string) (string, int) {
	count := 0
	text = mermaidFence.ReplaceAllStringFunc(text, func(fence string) string {
		m := mermaidFence.FindStringSubmatch(fence)
		if m == nil {
			return fence
		}
		code := strings.TrimSpace(m[1])
		if code == "" {
			return ""
		}
		count++
		return fmt.Sprintf("<div class=\"diagram\" data-kind=\"mermaid\" data-state=\"pending\"><pre class=\"mermaid\">\n%s\n</pre></div>", code)
	})
	return text, count
}
