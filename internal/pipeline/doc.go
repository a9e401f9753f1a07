// Package pipeline implements the content stages of image rendering:
// normalization of mixed Markdown/LaTeX/TikZ input, Markdown to HTML
// conversion, and assembly of the final self-contained document.
//
// Stages are pure string transformations with no browser involvement, so
// they can be tested exhaustively without a rendering engine.
package pipeline
