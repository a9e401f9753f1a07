package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	mathimg "github.com/willixrain/go-mathimg"
	"github.com/willixrain/go-mathimg/articlegen"
	"github.com/willixrain/go-mathimg/internal/config"
)

// ErrNoArticleConfig is returned when an article command runs without
// OpenAI credentials.
var ErrNoArticleConfig = errors.New("article generation requires an OpenAI API key (config file or MATHIMG_OPENAI_KEY)")

// run executes the selected command end to end.
func run(flags *cliFlags, log *logrus.Logger) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	content, err := resolveContent(ctx, flags, cfg)
	if err != nil {
		return err
	}

	opts := serviceOptions(flags, cfg, log)
	pool := mathimg.NewServicePool(mathimg.ResolvePoolSize(workersFrom(flags, cfg)), opts...)
	defer pool.Close()

	svc, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer pool.Release(svc)

	result, err := svc.Render(ctx, mathimg.Input{
		Content:    content,
		Background: flags.background,
	})
	if err != nil {
		return err
	}

	if result.Partial {
		log.Warn("some math or diagram blocks failed to typeset; the image is partial")
	}

	if err := os.WriteFile(flags.output, result.Image, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", flags.output, err)
	}
	log.WithFields(logrus.Fields{
		"path":   flags.output,
		"width":  result.Width,
		"height": result.Height,
	}).Info("image written")
	fmt.Printf("%s (%dx%d)\n", flags.output, result.Width, result.Height)
	return nil
}

// loadConfig loads the config file when given; otherwise defaults apply.
func loadConfig(flags *cliFlags) (*config.Config, error) {
	if flags.config == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(flags.config)
}

// resolveContent produces the text to render: raw input for the render
// command, generated article text for the LLM-backed commands.
func resolveContent(ctx context.Context, flags *cliFlags, cfg *config.Config) (string, error) {
	switch flags.command {
	case cmdRender:
		return readInput(flags.args)
	case cmdMath, cmdArticle:
		gen, err := newGenerator(cfg)
		if err != nil {
			return "", err
		}
		topic := strings.Join(flags.args, " ")
		if flags.command == cmdMath {
			return gen.MathArticle(ctx, topic)
		}
		return gen.Article(ctx, topic)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, flags.command)
	}
}

// readInput reads from the named file, or stdin when no file is given.
func readInput(args []string) (string, error) {
	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0]) // #nosec G304 -- input path is user-provided
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), nil
}

// newGenerator builds the article generator, letting the environment
// override the API key for CI and one-off use.
func newGenerator(cfg *config.Config) (*articlegen.Generator, error) {
	apiKey := cfg.OpenAI.APIKey
	if env := os.Getenv("MATHIMG_OPENAI_KEY"); env != "" {
		apiKey = env
	}
	if apiKey == "" {
		return nil, ErrNoArticleConfig
	}
	return articlegen.New(articlegen.Config{
		APIKey:      apiKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		MathPrompt:  cfg.OpenAI.MathPrompt,
		PlainPrompt: cfg.OpenAI.PlainPrompt,
	})
}

// serviceOptions merges flag and config settings into service options.
// Flags win over the config file.
func serviceOptions(flags *cliFlags, cfg *config.Config, log *logrus.Logger) []mathimg.Option {
	opts := []mathimg.Option{mathimg.WithLogger(log)}

	if cfg.Render.Background != "" {
		opts = append(opts, mathimg.WithBackground(cfg.Render.Background))
	}

	timeout := flags.timeout
	if timeout == 0 {
		// Validated at load time, error unreachable here.
		if d, err := cfg.Render.ParsedTimeout(); err == nil {
			timeout = d
		}
	}
	if timeout > 0 {
		opts = append(opts, mathimg.WithTimeout(timeout))
	}

	return opts
}

// workersFrom picks the pool size source: flag, then config, then auto.
func workersFrom(flags *cliFlags, cfg *config.Config) int {
	if flags.workers > 0 {
		return flags.workers
	}
	return cfg.Render.Workers
}
