// Package mathimg converts mixed Markdown, LaTeX math, and TikZ diagram
// source into a rendered raster image.
//
// The pipeline has three stages: normalization repairs malformed delimiters
// and fences and classifies diagram blocks, assembly produces a
// self-contained HTML document with only the typesetting engines the content
// needs, and rendering drives a headless browser until typesetting settles,
// then captures the content bounding box as a PNG.
//
// Basic usage:
//
//	svc := mathimg.New()
//	defer svc.Close()
//
//	result, err := svc.Render(ctx, mathimg.Input{Content: "$E=mc^2$"})
//
// For concurrent workloads, use ServicePool to bound the number of browser
// instances.
package mathimg
