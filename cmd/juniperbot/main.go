// Command juniperbot serves scripture passages from a verse corpus over
// HTTP and websockets, and answers one-off lookups from the terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/JuniperBot/core/corpus"
	"github.com/FocuswithJustin/JuniperBot/core/errors"
	"github.com/FocuswithJustin/JuniperBot/core/passage"
	"github.com/FocuswithJustin/JuniperBot/core/render"
	"github.com/FocuswithJustin/JuniperBot/core/session"
	"github.com/FocuswithJustin/JuniperBot/core/sqlite"
	"github.com/FocuswithJustin/JuniperBot/internal/api"
	"github.com/FocuswithJustin/JuniperBot/internal/config"
	"github.com/FocuswithJustin/JuniperBot/internal/corpusfile"
	"github.com/FocuswithJustin/JuniperBot/internal/logging"
	"github.com/FocuswithJustin/JuniperBot/internal/metrics"
)

const version = "0.1.0"

// CLI defines the command-line interface for juniperbot.
var CLI struct {
	Globals

	Serve        ServeCmd        `cmd:"" help:"Start the passage API and websocket server"`
	Lookup       LookupCmd       `cmd:"" help:"Look up a passage and print it"`
	Translations TranslationsCmd `cmd:"" help:"List available translations"`
	Corpus       CorpusGroup     `cmd:"" help:"Corpus inspection and conversion"`
	Commands     CommandsCmd     `cmd:"" help:"Show list of commands"`
	Ping         PingCmd         `cmd:"" help:"Test bot responsiveness"`
	Version      VersionCmd      `cmd:"" help:"Print version information"`
}

// CorpusGroup contains corpus file operations.
type CorpusGroup struct {
	Info   CorpusInfoCmd   `cmd:"" help:"Show corpus format, fingerprint and per-translation counts"`
	Export CorpusExportCmd `cmd:"" help:"Convert the corpus to SQLite or JSON"`
}

// Globals are flags shared by every command. Set flags override the
// environment and the .env file.
type Globals struct {
	EnvFile     string `name:"env-file" help:"Environment file to load" default:".env" type:"path"`
	CorpusFile  string `name:"corpus-file" short:"c" help:"Corpus file (.json, .json.xz, .db, .xml)" type:"path"`
	Translation string `short:"t" help:"Default translation"`
	LogLevel    string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat   string `name:"log-format" help:"Log format (json, text)"`

	out io.Writer
}

func (g *Globals) stdout() io.Writer {
	if g.out != nil {
		return g.out
	}
	return os.Stdout
}

// config loads and validates the configuration and installs the logger.
// One-shot commands log at warn unless a level was asked for.
func (g *Globals) config(quiet bool) (config.Config, error) {
	cfg, err := config.Load(g.EnvFile)
	if err != nil {
		return config.Config{}, err
	}
	if g.CorpusFile != "" {
		cfg.CorpusPath = g.CorpusFile
	}
	if g.Translation != "" {
		cfg.DefaultTranslation = g.Translation
	}
	if g.LogFormat != "" {
		cfg.LogFormat = g.LogFormat
	}
	switch {
	case g.LogLevel != "":
		cfg.LogLevel = g.LogLevel
	case quiet && os.Getenv("JUNIPERBOT_LOG_LEVEL") == "":
		cfg.LogLevel = "warn"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.InitLogging(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func loadCorpus(path string) (*corpus.Corpus, error) {
	c, err := corpusfile.Load(path)
	if err != nil {
		return nil, err
	}
	logging.CorpusLoaded(path, c.Fingerprint(), len(c.Translations()))
	return c, nil
}

// service builds a pipeline without a session store; interactive
// requests from the terminal come back as chunks.
func (g *Globals) service() (*passage.Service, error) {
	cfg, err := g.config(true)
	if err != nil {
		return nil, err
	}
	c, err := loadCorpus(cfg.CorpusPath)
	if err != nil {
		return nil, err
	}
	return passage.NewService(c, nil, cfg.Passage())
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port        int           `help:"HTTP server port (overrides JUNIPERBOT_PORT)"`
	APIKeys     []string      `name:"api-key" help:"API key required on requests (repeatable)"`
	RateLimit   int           `name:"rate-limit" help:"Requests per minute per actor, 0 disables" default:"-1"`
	IdleTimeout time.Duration `name:"idle-timeout" help:"Session idle timeout, e.g. 2m"`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.config(false)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if len(c.APIKeys) > 0 {
		cfg.APIKeys = c.APIKeys
	}
	if c.RateLimit >= 0 {
		cfg.RateLimit = c.RateLimit
	}
	if c.IdleTimeout > 0 {
		cfg.IdleTimeout = c.IdleTimeout
	}

	corp, err := loadCorpus(cfg.CorpusPath)
	if err != nil {
		return err
	}
	m := metrics.New()
	store, err := session.NewStore(cfg.MaxSessions, cfg.IdleTimeout,
		session.WithEvictHook(func(s *session.Session) {
			m.SessionEvicted()
			logging.SessionEvent(context.Background(), "evicted", s.ID(), "owner", s.Owner())
		}))
	if err != nil {
		return err
	}
	logging.Info("session store ready", "capacity", cfg.MaxSessions, "idle_timeout", store.IdleTimeout())
	svc, err := passage.NewService(corp, store, cfg.Passage(), passage.WithMetrics(m))
	if err != nil {
		return err
	}
	srv, err := api.New(apiConfig(cfg), svc, m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx)
}

func apiConfig(cfg config.Config) api.Config {
	return api.Config{
		Port:              cfg.Port,
		Version:           version,
		RateLimitRequests: cfg.RateLimit,
		RateLimitBurst:    cfg.RateBurst,
		Auth: api.AuthConfig{
			Enabled: len(cfg.APIKeys) > 0,
			APIKeys: cfg.APIKeys,
		},
		AllowedOrigins: cfg.AllowedOrigins,
	}
}

// LookupCmd resolves one reference.
type LookupCmd struct {
	Reference string `arg:"" help:"Reference, e.g. 48:1 or 48:1-10"`
	Mode      string `help:"Presentation mode (embed, plain)" default:"plain"`
	Delivery  string `help:"Delivery (single, chunked)" default:"chunked"`
}

func (c *LookupCmd) Run(g *Globals) error {
	svc, err := g.service()
	if err != nil {
		return err
	}
	mode, err := render.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	delivery, err := passage.ParseDelivery(c.Delivery)
	if err != nil {
		return err
	}

	res, err := svc.Resolve(context.Background(), passage.Request{
		Reference: c.Reference,
		Actor:     "cli",
		Mode:      mode,
		Delivery:  delivery,
	})
	if err != nil {
		return userFacing(err)
	}

	out := g.stdout()
	if mode == render.ModeEmbed {
		fmt.Fprint(out, render.TitleLine(res.Output.Title))
	}
	if res.Kind == passage.ResultSingle {
		fmt.Fprintln(out, res.Text())
	} else {
		for i, ch := range res.Chunks {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "[%d/%d]\n%s\n", i+1, len(res.Chunks), ch.Text)
		}
	}
	if mode == render.ModeEmbed && res.Output.Footer != "" {
		fmt.Fprintln(out, res.Output.Footer)
	}
	return nil
}

// TranslationsCmd lists translations.
type TranslationsCmd struct {
	JSON bool `help:"Output as JSON"`
}

func (c *TranslationsCmd) Run(g *Globals) error {
	svc, err := g.service()
	if err != nil {
		return err
	}
	stats := svc.Corpus().Stats()
	out := g.stdout()
	if c.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	def := svc.Config().DefaultTranslation
	for _, s := range stats {
		marker := " "
		if s.Translation == def {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-20s %4d chapters %6d verses\n", marker, s.Translation, s.Chapters, s.Verses)
	}
	return nil
}

// CorpusInfoCmd describes a corpus file.
type CorpusInfoCmd struct {
	Path string `arg:"" optional:"" help:"Corpus file (defaults to the configured corpus)" type:"path"`
}

func (c *CorpusInfoCmd) Run(g *Globals) error {
	cfg, err := g.config(true)
	if err != nil {
		return err
	}
	path := c.Path
	if path == "" {
		path = cfg.CorpusPath
	}
	corp, err := corpusfile.Load(path)
	if err != nil {
		return err
	}

	out := g.stdout()
	format, compression := corpusfile.DetectFormat(path)
	fmt.Fprintf(out, "Corpus: %s\n", path)
	fmt.Fprintf(out, "  Format: %s", format)
	if compression != "" {
		fmt.Fprintf(out, " (%s)", compression)
	}
	fmt.Fprintln(out)
	if format == corpusfile.FormatSQLite {
		info := sqlite.GetInfo()
		fmt.Fprintf(out, "  Driver: %s (%s)\n", info.DriverName, info.DriverType)
	}
	fmt.Fprintf(out, "  Fingerprint: %s\n", corp.Fingerprint())
	fmt.Fprintf(out, "  Translations: %d\n", len(corp.Translations()))
	for _, s := range corp.Stats() {
		fmt.Fprintf(out, "    %s: %d chapters, %d verses\n", s.Translation, s.Chapters, s.Verses)
	}
	return nil
}

// CorpusExportCmd converts the configured corpus.
type CorpusExportCmd struct {
	Out string `required:"" help:"Output path (.db, .sqlite, .json, .json.xz, .json.gz)" type:"path"`
}

func (c *CorpusExportCmd) Run(g *Globals) error {
	cfg, err := g.config(true)
	if err != nil {
		return err
	}
	corp, err := loadCorpus(cfg.CorpusPath)
	if err != nil {
		return err
	}

	if err := corpusfile.Export(context.Background(), corp, c.Out); err != nil {
		return err
	}
	fmt.Fprintf(g.stdout(), "Exported %d translations to %s\n", len(corp.Translations()), c.Out)
	return nil
}

// CommandsCmd prints the command list.
type CommandsCmd struct {
	Prefix string `help:"Command prefix shown in the listing" default:"!"`
}

func (c *CommandsCmd) Run(g *Globals) error {
	book := passage.DefaultBook
	if cfg, err := config.Load(g.EnvFile); err == nil && cfg.Book != "" {
		book = cfg.Book
	}
	fmt.Fprint(g.stdout(), passage.HelpText(c.Prefix, passage.Commands(book)))
	return nil
}

type PingCmd struct{}

func (c *PingCmd) Run(g *Globals) error {
	fmt.Fprintln(g.stdout(), passage.Pong)
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	info := sqlite.GetInfo()
	fmt.Fprintf(g.stdout(), "juniperbot version %s (sqlite: %s, %s)\n", version, info.DriverName, info.DriverType)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("juniperbot"),
		kong.Description("JuniperBot - scripture passage lookup and pagination service"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Bind(&CLI.Globals),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// userFacing replaces the detail of a classified error with its fixed user
// message. Internal errors pass through so operators still see the cause.
func userFacing(err error) error {
	if errors.KindOf(err) == errors.KindInternal {
		return err
	}
	return fmt.Errorf("%s", errors.UserMessage(err))
}
