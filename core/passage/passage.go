// Package passage wires the reference pipeline together: parse, resolve,
// format, and deliver as one message, a chunk list, or a pagination
// session.
package passage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FocuswithJustin/JuniperBot/core/chunk"
	"github.com/FocuswithJustin/JuniperBot/core/corpus"
	"github.com/FocuswithJustin/JuniperBot/core/errors"
	"github.com/FocuswithJustin/JuniperBot/core/reference"
	"github.com/FocuswithJustin/JuniperBot/core/render"
	"github.com/FocuswithJustin/JuniperBot/core/session"
	"github.com/FocuswithJustin/JuniperBot/internal/logging"
	"github.com/FocuswithJustin/JuniperBot/internal/metrics"
)

// Defaults applied by NewService when a Config field is zero.
const (
	DefaultBook           = "1 Enoch"
	DefaultChunkSize      = 1800
	DefaultMaxRangeVerses = 500
)

// Config holds the pipeline settings.
type Config struct {
	Book               string
	DefaultTranslation string
	ChunkSize          int
	MaxRangeVerses     int
}

// Delivery is the most elaborate delivery a caller accepts when the
// passage does not fit one message. Ranges longer than
// Config.MaxRangeVerses fail with PassageTooLong under every delivery,
// interactive included; pagination only applies below that cap.
type Delivery int

const (
	// DeliveryInteractive paginates oversize passages through a session.
	DeliveryInteractive Delivery = iota
	// DeliveryChunked returns every chunk at once.
	DeliveryChunked
	// DeliverySingle rejects oversize passages with PassageTooLong.
	DeliverySingle
)

func (d Delivery) String() string {
	switch d {
	case DeliveryChunked:
		return "chunked"
	case DeliverySingle:
		return "single"
	default:
		return "interactive"
	}
}

// ParseDelivery parses a delivery name; empty means interactive.
func ParseDelivery(s string) (Delivery, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "interactive", "paginated":
		return DeliveryInteractive, nil
	case "chunked", "chunks":
		return DeliveryChunked, nil
	case "single":
		return DeliverySingle, nil
	}
	return DeliveryInteractive, fmt.Errorf("unknown delivery %q", s)
}

// Request is one lookup.
type Request struct {
	Reference   string
	Translation string // empty selects the default translation
	Actor       string // required for interactive delivery
	Mode        render.Mode
	Delivery    Delivery
}

// ResultKind says how a Result must be delivered.
type ResultKind int

const (
	// ResultSingle fits one message.
	ResultSingle ResultKind = iota
	// ResultChunks is a list of messages sent in order.
	ResultChunks
	// ResultInteractive is the first page of a session.
	ResultInteractive
)

func (k ResultKind) String() string {
	switch k {
	case ResultChunks:
		return "chunks"
	case ResultInteractive:
		return "interactive"
	default:
		return "single"
	}
}

// Result is a resolved passage ready for delivery.
type Result struct {
	Kind        ResultKind
	Translation string
	Reference   reference.Reference
	Mode        render.Mode
	Output      render.Output
	Chunks      []chunk.Chunk
	Page        *session.Page
}

// Text returns the message content for single results.
func (r Result) Text() string {
	return r.Output.Text(r.Mode)
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service resolves passages against one immutable corpus. It is safe for
// concurrent use.
type Service struct {
	corpus   *corpus.Corpus
	sessions *session.Store
	cfg      Config
	format   render.Formatter
	metrics  *metrics.Metrics
}

// NewService returns a Service over c. sessions may be nil, in which case
// interactive requests fall back to chunked delivery.
func NewService(c *corpus.Corpus, sessions *session.Store, cfg Config, opts ...Option) (*Service, error) {
	if c == nil {
		return nil, errors.New(errors.KindInternal, "passage service needs a corpus")
	}
	if cfg.Book == "" {
		cfg.Book = DefaultBook
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxRangeVerses <= 0 {
		cfg.MaxRangeVerses = DefaultMaxRangeVerses
	}
	if cfg.DefaultTranslation == "" {
		if names := c.Translations(); len(names) > 0 {
			cfg.DefaultTranslation = names[0]
		}
	}
	if !c.Has(cfg.DefaultTranslation) {
		return nil, errors.Newf(errors.KindTranslationNotFound, "default translation %q", cfg.DefaultTranslation)
	}

	s := &Service{
		corpus:   c,
		sessions: sessions,
		cfg:      cfg,
		format: render.Formatter{
			Book:            cfg.Book,
			ShowTranslation: len(c.Translations()) > 1,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics != nil && sessions != nil {
		live := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "juniperbot_sessions_live",
			Help: "Pagination sessions held in memory, including expired ones awaiting pruning.",
		}, func() float64 { return float64(sessions.Len()) })
		if err := s.metrics.Registry().Register(live); err != nil {
			var dup prometheus.AlreadyRegisteredError
			if !errors.As(err, &dup) {
				return nil, errors.Internal(err, "register session gauge")
			}
		}
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Corpus returns the corpus being served.
func (s *Service) Corpus() *corpus.Corpus { return s.corpus }

// Translations returns the available translation names, sorted.
func (s *Service) Translations() []string { return s.corpus.Translations() }

// Resolve runs the full pipeline for req.
func (s *Service) Resolve(ctx context.Context, req Request) (Result, error) {
	res, err := s.resolve(req)
	if err != nil {
		kind := errors.KindOf(err)
		s.metrics.ObservePassage(req.Delivery.String(), kind.String(), 0)
		logging.PassageRejected(ctx, req.Reference, kind.String(), err, "actor", req.Actor)
		return Result{}, err
	}

	s.metrics.ObservePassage(req.Delivery.String(), metrics.OutcomeOK, max(len(res.Chunks), 1))
	logging.PassageServed(ctx, res.Reference.String(), res.Translation, res.Kind.String(), max(len(res.Chunks), 1),
		"actor", req.Actor, "mode", res.Mode.String())
	if res.Page != nil {
		s.metrics.SessionCreated()
		logging.SessionEvent(ctx, "created", res.Page.SessionID, "actor", req.Actor, "chunks", res.Page.Total)
	}
	return res, nil
}

func (s *Service) resolve(req Request) (Result, error) {
	ref, err := reference.Parse(req.Reference)
	if err != nil {
		return Result{}, err
	}
	if ref.Len() > s.cfg.MaxRangeVerses {
		return Result{}, errors.Newf(errors.KindPassageTooLong, "%s spans %d verses, limit %d", ref, ref.Len(), s.cfg.MaxRangeVerses)
	}

	name := req.Translation
	if strings.TrimSpace(name) == "" {
		name = s.cfg.DefaultTranslation
	}
	verses, err := s.corpus.Lookup(name, ref)
	if err != nil {
		return Result{}, err
	}
	canonical, _ := s.corpus.Canonical(name)

	res := Result{
		Kind:        ResultSingle,
		Translation: canonical,
		Reference:   ref,
		Mode:        req.Mode,
		Output:      s.format.Format(canonical, ref, verses),
	}
	if res.Output.Fits(req.Mode) {
		return res, nil
	}
	if req.Delivery == DeliverySingle {
		return Result{}, errors.Newf(errors.KindPassageTooLong, "%s renders to %d characters, limit %d",
			ref, res.Output.Len(req.Mode), req.Mode.Limit())
	}

	res.Chunks, err = chunk.Split(res.Output.Text(req.Mode), min(s.cfg.ChunkSize, req.Mode.Limit()))
	if err != nil {
		return Result{}, err
	}
	res.Kind = ResultChunks
	if req.Delivery == DeliveryChunked || s.sessions == nil {
		return res, nil
	}

	if req.Actor == "" {
		return Result{}, errors.New(errors.KindUnauthorized, "interactive delivery needs an actor")
	}
	sess, err := s.sessions.Create(req.Actor, res.Chunks)
	if err != nil {
		return Result{}, err
	}
	page, err := sess.Current()
	if err != nil {
		return Result{}, err
	}
	res.Kind = ResultInteractive
	res.Page = &page
	return res, nil
}

// Navigate applies a pagination action to a session on behalf of actor.
func (s *Service) Navigate(ctx context.Context, sessionID, actor string, action session.Action) (session.Page, error) {
	if s.sessions == nil {
		return session.Page{}, errors.Newf(errors.KindSessionNotFound, "session %s", sessionID)
	}
	page, err := s.sessions.Navigate(sessionID, actor, action)
	if err != nil {
		kind := errors.KindOf(err)
		s.metrics.ObserveNavigation(action.String(), kind.String())
		if kind == errors.KindUnauthorized {
			logging.SecurityEvent("navigation_rejected", "passage",
				"session_id", sessionID, "actor", actor)
		} else {
			logging.SessionEvent(ctx, "rejected", sessionID, "action", action.String(), "kind", kind.String())
		}
		return session.Page{}, err
	}
	s.metrics.ObserveNavigation(action.String(), metrics.OutcomeOK)
	logging.SessionEvent(ctx, action.String(), sessionID, "index", page.Index, "total", page.Total)
	return page, nil
}

// Close ends a session on behalf of its owner and forgets it. Closing an
// expired session is allowed; a later action gets SessionNotFound.
func (s *Service) Close(ctx context.Context, sessionID, actor string) error {
	if s.sessions == nil {
		return errors.Newf(errors.KindSessionNotFound, "session %s", sessionID)
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		s.metrics.ObserveNavigation("close", errors.KindOf(err).String())
		return err
	}
	if actor != sess.Owner() {
		s.metrics.ObserveNavigation("close", errors.KindUnauthorized.String())
		logging.SecurityEvent("close_rejected", "passage",
			"session_id", sessionID, "actor", actor)
		return errors.Newf(errors.KindUnauthorized, "session %s: actor %q is not the owner", sessionID, actor)
	}

	sess.Expire()
	s.sessions.Remove(sessionID)
	s.metrics.ObserveNavigation("close", metrics.OutcomeOK)
	logging.SessionEvent(ctx, "closed", sessionID, "index", sess.Index(), "total", sess.Total(),
		"age", time.Since(sess.CreatedAt()).Round(time.Second))
	return nil
}

// Release expires the listed sessions that actor owns, e.g. when its
// connection goes away. Expired sessions stay addressable until pruned so
// late actions get SessionExpired. It returns how many were live.
func (s *Service) Release(ctx context.Context, actor string, sessionIDs []string) int {
	if s.sessions == nil {
		return 0
	}
	released := 0
	for _, id := range sessionIDs {
		sess, err := s.sessions.Get(id)
		if err != nil || sess.Owner() != actor || sess.Expired() {
			continue
		}
		sess.Expire()
		released++
		logging.SessionEvent(ctx, "released", id, "actor", actor, "index", sess.Index())
	}
	return released
}
