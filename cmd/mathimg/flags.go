package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

// Commands.
const (
	cmdRender  = "render"
	cmdMath    = "math"
	cmdArticle = "article"
)

// Flag parsing errors.
var (
	ErrNoCommand      = errors.New("no command given")
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingTopic   = errors.New("a topic is required")
)

// cliFlags holds parsed command-line state.
type cliFlags struct {
	command string
	args    []string // input file for render, topic words for math/article

	output     string
	config     string
	background string
	timeout    time.Duration
	workers    int
	verbose    bool
	version    bool
}

const usageText = `Usage: mathimg <command> [flags]

Commands:
  render [file]    render Markdown/LaTeX/TikZ content to a PNG (stdin if no file)
  math <topic>     generate a math article with an LLM, then render it
  article <topic>  generate a technical article with an LLM, then render it

Flags:
`

// parseFlags parses argv into cliFlags. The first non-flag argument selects
// the command; remaining arguments belong to it.
func parseFlags(argv []string) (*cliFlags, error) {
	f := &cliFlags{}

	fs := flag.NewFlagSet("mathimg", flag.ContinueOnError)
	fs.StringVarP(&f.output, "output", "o", "out.png", "output image path")
	fs.StringVarP(&f.config, "config", "c", "", "config file path or name")
	fs.StringVarP(&f.background, "background", "b", "", "background color (hex or named)")
	fs.DurationVarP(&f.timeout, "timeout", "t", 0, "render timeout (0 = default)")
	fs.IntVarP(&f.workers, "workers", "w", 0, "render sessions (0 = auto)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "verbose logging")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usageText)
		fs.PrintDefaults()
	}

	if err := fs.Parse(argv[1:]); err != nil {
		return nil, err
	}

	args := fs.Args()
	if f.version {
		return f, nil
	}
	if len(args) == 0 {
		fs.Usage()
		return nil, ErrNoCommand
	}

	f.command = args[0]
	f.args = args[1:]

	switch f.command {
	case cmdRender:
		// Input file is optional; stdin is the fallback.
	case cmdMath, cmdArticle:
		if strings.TrimSpace(strings.Join(f.args, " ")) == "" {
			return nil, fmt.Errorf("%w for %q", ErrMissingTopic, f.command)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, f.command)
	}

	return f, nil
}
