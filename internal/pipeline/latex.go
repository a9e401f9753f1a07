package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

// LaTeX prose and environment patterns converted to Markdown equivalents so
// model output written in article-style LaTeX renders without a TeX engine.
var (
	latexTextbf = regexp.MustCompile(`\\textbf\{([\s\S]*?)\}`)
	latexTextit = regexp.MustCompile(`\\textit\{([\s\S]*?)\}`)
	latexEmph   = regexp.MustCompile(`\\emph\{([\s\S]*?)\}`)

	// {x \mid P(x)} set notation; braces must become \lbrace/\rbrace or the
	// math engine treats them as grouping.
	setNotation = regexp.MustCompile(`(^|[^\\])\{([^{}]*\\mid[^{}]*)\}`)

	enumerateBegin = regexp.MustCompile(`\\begin\{enumerate\}(\[.*?\])?`)
	enumerateEnd   = regexp.MustCompile(`\\end\{enumerate\}`)
	itemizeBegin   = regexp.MustCompile(`\\begin\{itemize\}`)
	itemizeEnd     = regexp.MustCompile(`\\end\{itemize\}`)
	itemMarker     = regexp.MustCompile(`^\\item\s*`)

	tableBegin     = regexp.MustCompile(`\\begin\{table\}(\[.*?\])?`)
	tableEnd       = regexp.MustCompile(`\\end\{table\}`)
	tableCentering = regexp.MustCompile(`\\centering`)
	tableCaption   = regexp.MustCompile(`\\caption\{.*?\}`)
	tabularEnv     = regexp.MustCompile(`\\begin\{tabular\}\{[^}]*\}([\s\S]*?)\\end\{tabular\}`)
	tableHline     = regexp.MustCompile(`\\hline\s*`)
	tableRowSep    = regexp.MustCompile(`\\\\\s*`)
)

// convertLatexProse rewrites LaTeX text commands as Markdown emphasis and
// escapes set-notation braces.
func convertLatexProse(text string) string {
	text = latexTextbf.ReplaceAllString(text, "**$1**")
	text = latexTextit.ReplaceAllString(text, "*$1*")
	text = latexEmph.ReplaceAllString(text, "*$1*")
	text = setNotation.ReplaceAllString(text, `$1\lbrace $2\rbrace `)
	return text
}

// convertLatexLists strips enumerate/itemize wrappers and numbers \item
// lines as a Markdown ordered list.
func convertLatexLists(text string) string {
	text = enumerateBegin.ReplaceAllString(text, "")
	text = enumerateEnd.ReplaceAllString(text, "")
	text = itemizeBegin.ReplaceAllString(text, "")
	text = itemizeEnd.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	counter := 0

	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if itemMarker.MatchString(stripped) {
			counter++
			content := itemMarker.ReplaceAllString(stripped, "")
			result = append(result, strconv.Itoa(counter)+". "+content)
			continue
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

// convertLatexTables rewrites table/tabular environments as Markdown pipe
// tables. Captions and horizontal rules are dropped; cell content is kept.
func convertLatexTables(text string) string {
	text = tableBegin.ReplaceAllString(text, "")
	text = tableEnd.ReplaceAllString(text, "")
	text = tableCentering.ReplaceAllString(text, "")
	text = tableCaption.ReplaceAllString(text, "")

	return tabularEnv.ReplaceAllStringFunc(text, func(env string) string {
		m := tabularEnv.FindStringSubmatch(env)
		if m == nil {
			return env
		}
		return convertTabular(m[1])
	})
}

func convertTabular(content string) string {
	content = tableHline.ReplaceAllString(content, "")

	var rows []string
	for i, row := range tableRowSep.Split(content, -1) {
		row = strings.TrimSpace(row)
		if row == "" {
			continue
		}

		cells := strings.Split(row, "&")
		for j := range cells {
			cells[j] = strings.TrimSpace(cells[j])
		}
		rows = append(rows, "| "+strings.Join(cells, " | ")+" |")

		if i == 0 {
			sep := make([]string, len(cells))
			for j := range sep {
				sep[j] = "---"
			}
			rows = append(rows, "|"+strings.Join(sep, "|")+"|")
		}
	}

	return strings.Join(rows, "\n")
}
