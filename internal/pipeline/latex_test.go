package pipeline

import (
	"strings"
	"testing"
)

func TestConvertLatexProse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "textbf to strong",
			input:    `\textbf{important}`,
			expected: "**important**",
		},
		{
			name:     "textit to emphasis",
			input:    `\textit{slanted}`,
			expected: "*slanted*",
		},
		{
			name:     "emph to emphasis",
			input:    `\emph{stressed}`,
			expected: "*stressed*",
		},
		{
			name:     "set notation braces escaped",
			input:    `$\{x \mid x > 0\}$ and {n \mid n \in A}`,
			expected: `$\{x \mid x > 0\}$ and \lbrace n \mid n \in A\rbrace `,
		},
		{
			name:     "plain text unchanged",
			input:    "no commands here",
			expected: "no commands here",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := convertLatexProse(tt.input)
			if got != tt.expected {
				t.Errorf("convertLatexProse() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestConvertLatexLists(t *testing.T) {
	t.Parallel()

	input := "\\begin{enumerate}\n\\item first\n\\item second\n\\end{enumerate}"
	expected := "\n1. first\n2. second\n"

	got := convertLatexLists(input)
	if got != expected {
		t.Errorf("convertLatexLists() = %q, want %q", got, expected)
	}
}

func TestConvertLatexListsItemize(t *testing.T) {
	t.Parallel()

	input := "\\begin{itemize}\n\\item alpha\n\\end{itemize}"
	expected := "\n1. alpha\n"

	got := convertLatexLists(input)
	if got != expected {
		t.Errorf("convertLatexLists() = %q, want %q", got, expected)
	}
}

func TestConvertLatexTables(t *testing.T) {
	t.Parallel()

	input := `\begin{table}[h]
\centering
\caption{Results}
\begin{tabular}{|c|c|}
\hline
a & b \\
1 & 2 \\
\hline
\end{tabular}
\end{table}`

	got := convertLatexTables(input)

	for _, want := range []string{"| a | b |", "|---|---|", "| 1 | 2 |"} {
		if !strings.Contains(got, want) {
			t.Errorf("convertLatexTables() = %q, want to contain %q", got, want)
		}
	}
	for _, gone := range []string{`\caption`, `\centering`, `\hline`, "tabular"} {
		if strings.Contains(got, gone) {
			t.Errorf("convertLatexTables() left %q in output %q", gone, got)
		}
	}
}
