package nudge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nudge-project/nudge/internal/audit"
	"github.com/nudge-project/nudge/internal/enforce"
	"github.com/nudge-project/nudge/internal/events"
	"github.com/nudge-project/nudge/internal/ledger"
	"github.com/nudge-project/nudge/internal/policy"
	"github.com/nudge-project/nudge/internal/updater"
	"github.com/nudge-project/nudge/pkg/clock"
	"github.com/nudge-project/nudge/pkg/config"
	"github.com/nudge-project/nudge/pkg/logging"
	"github.com/nudge-project/nudge/pkg/metrics"
	"github.com/nudge-project/nudge/pkg/model"
	"github.com/nudge-project/nudge/pkg/template"
	"github.com/nudge-project/nudge/pkg/webhook"

	"k8s.io/apimachinery/pkg/util/wait"
)

// DefaultEventBuffer is the async sink capacity used when Options leaves it unset.
const DefaultEventBuffer = 128

// DefaultCloseTimeout bounds how long Close waits for pending events.
const DefaultCloseTimeout = 3 * time.Second

// Options configures Open. Zero values select the defaults noted per field.
type Options struct {
	ConfigPath string            // Config file; defaults to config.DefaultPath()
	Config     *config.Config    // Preloaded config; skips ConfigPath when set
	StateDir   string            // Ledger and audit location; defaults to config.DefaultStateDir()
	Clock      clock.Clock       // Defaults to clock.Real()
	Updater    updater.Updater   // Defaults to a CommandUpdater built from config
	Logger     *logging.Logger   // Defaults to a logger built from config
	Metrics    *metrics.Registry // Defaults to metrics.Default()

	EventBuffer  int
	CloseTimeout time.Duration // Defaults to DefaultCloseTimeout
}

// Client is an open enforcement session.
type Client struct {
	cfg      *config.Config
	stateDir string
	clock    clock.Clock
	logger   *logging.Logger
	metrics  *metrics.Registry
	ledger   *ledger.Ledger
	audit    *audit.FileAppender
	events   *events.AsyncSink
	ctrl     *enforce.Controller

	closeTimeout time.Duration
}

// Open loads and validates configuration, opens the ledger for the
// configured deadline and builds the controller.
func Open(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		path := opts.ConfigPath
		if path == "" {
			path = config.DefaultPath()
		}
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("nudge open: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("nudge open: %w", err)
	}
	settings, err := SettingsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("nudge open: %w", err)
	}

	c := &Client{
		cfg:      cfg,
		stateDir: opts.StateDir,
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,

		closeTimeout: opts.CloseTimeout,
	}
	if c.closeTimeout <= 0 {
		c.closeTimeout = DefaultCloseTimeout
	}
	if c.stateDir == "" {
		c.stateDir = config.DefaultStateDir()
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.logger == nil {
		c.logger = newLogger(cfg)
	}
	if c.metrics == nil {
		c.metrics = metrics.Default()
	}

	sinks := []events.Sink{
		events.LogSink{Logger: c.logger},
		events.MetricsSink{Registry: c.metrics},
	}
	if cfg.Audit.Enabled {
		c.audit = audit.NewFileAppender(cfg.AuditPath(c.stateDir))
		sinks = append(sinks, events.AuditSink{
			Appender: c.audit,
			OnError: func(err error) {
				c.logger.ErrorErr("audit append failed", err, map[string]any{"path": c.audit.Path()})
			},
		})
	}
	if len(cfg.Webhooks) > 0 {
		sinks = append(sinks, events.WebhookSink{
			Client: newWebhookClient(cfg),
			OnError: func(err error) {
				c.logger.ErrorErr("webhook delivery failed", err)
			},
		})
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	c.events = events.Async(events.Multi(sinks...), buffer, func(ev model.Event) {
		c.metrics.RecordDropped()
	})

	store, err := openStore(cfg, c.stateDir)
	if err != nil {
		c.events.Close()
		return nil, fmt.Errorf("nudge open: %w", err)
	}
	timeline := model.TimelineKey(settings.Deadline)
	c.ledger, err = ledger.Open(store, timeline, ledger.Options{
		Clock: c.clock,
		OnRetry: func(attempt int, err error) {
			c.events.Emit(model.Event{
				Type:     model.EventPersistenceRetry,
				At:       c.clock.Now(),
				Timeline: timeline,
				Count:    attempt,
				Detail:   err.Error(),
			})
		},
	})
	if err != nil {
		store.Close()
		c.events.Close()
		return nil, fmt.Errorf("nudge open: %w", err)
	}
	if derr := c.ledger.Degraded(); derr != nil {
		c.logger.Warn("ledger unreadable; deferrals disabled until reset", map[string]any{
			"error":    derr.Error(),
			"timeline": timeline,
		})
	}

	u := opts.Updater
	if u == nil {
		args := template.ExpandAll(cfg.Updater.Args, map[string]string{
			"deadline":      timeline,
			"deadline_date": settings.Deadline.UTC().Format(time.DateOnly),
		})
		u = updater.NewCommandUpdater(cfg.Updater.Command, args, cfg.Updater.Timeout)
	}
	c.ctrl, err = enforce.New(settings, c.clock, c.ledger, u, c.events)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("nudge open: %w", err)
	}
	c.logger.Debug("nudge opened", map[string]any{
		"timeline":  timeline,
		"state_dir": c.stateDir,
		"backend":   cfg.Ledger.Backend,
	})
	return c, nil
}

// SettingsFromConfig maps configuration onto controller settings.
func SettingsFromConfig(cfg *config.Config) (enforce.Settings, error) {
	rounding, err := policy.ParseRounding(cfg.ImminentRounding)
	if err != nil {
		return enforce.Settings{}, err
	}
	s := enforce.Settings{
		Deadline:            cfg.Deadline,
		ImminentWindowHours: cfg.ImminentWindowHours,
		DemoOverride:        cfg.DemoMode,
		AllowButtons:        cfg.AllowButtons,
		AllowedDeferrals:    cfg.AllowedDeferrals,
		Rounding:            rounding,
	}
	return s, s.Validate()
}

func openStore(cfg *config.Config, stateDir string) (ledger.Store, error) {
	path := cfg.LedgerPath(stateDir)
	if cfg.Ledger.Backend == config.BackendSQLite {
		return ledger.OpenSQLite(path)
	}
	return ledger.NewFileStore(path)
}

func newLogger(cfg *config.Config) *logging.Logger {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		format = logging.FormatText
	}
	l := logging.NewLogger(level)
	l.SetFormat(format)
	l.SetOutput(os.Stderr)
	return l
}

// Config returns the effective configuration.
func (c *Client) Config() *config.Config { return c.cfg }

// StateDir returns the directory holding the ledger and audit log.
func (c *Client) StateDir() string { return c.stateDir }

// Controller exposes the enforcement controller.
func (c *Client) Controller() *enforce.Controller { return c.ctrl }

// Ledger exposes the deferral ledger for operator tooling.
func (c *Client) Ledger() *ledger.Ledger { return c.ledger }

// Audit returns the audit log, or nil when auditing is disabled.
func (c *Client) Audit() *audit.FileAppender { return c.audit }

// Status evaluates the state at the current time.
func (c *Client) Status() model.EnforcementState {
	st := c.ctrl.OnTick(c.clock.Now())
	c.metrics.SetDaysRemaining(st.DaysRemaining)
	return st
}

// Defer records a deferral through the controller.
func (c *Client) Defer(req enforce.DeferralRequest) (model.EnforcementState, error) {
	st, err := c.ctrl.RecordDeferral(req)
	c.metrics.SetDaysRemaining(st.DaysRemaining)
	return st, err
}

// UpdateNow launches the configured updater.
func (c *Client) UpdateNow(ctx context.Context) error {
	return c.ctrl.RecordUpdateNow(ctx)
}

// Run re-evaluates the state every configured tick interval until ctx is done.
func (c *Client) Run(ctx context.Context, observe func(model.EnforcementState)) error {
	return c.RunEvery(ctx, c.cfg.TickInterval, observe)
}

// RunEvery is Run with an explicit interval.
func (c *Client) RunEvery(ctx context.Context, interval time.Duration, observe func(model.EnforcementState)) error {
	return c.ctrl.Run(ctx, interval, func(st model.EnforcementState) {
		c.metrics.SetDaysRemaining(st.DaysRemaining)
		if observe != nil {
			observe(st)
		}
	})
}

// ResetLedger clears the persisted quit count for the current timeline and
// re-evaluates the state.
func (c *Client) ResetLedger() (model.EnforcementState, error) {
	if err := c.ledger.Reset(); err != nil {
		return c.ctrl.State(), err
	}
	c.logger.Info("ledger reset", map[string]any{"timeline": c.ledger.Timeline()})
	return c.Status(), nil
}

// Close flushes pending events and releases the ledger. Deliveries still
// running after the close timeout are cancelled.
func (c *Client) Close() error {
	var errs []error
	if c.events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.closeTimeout)
		if err := c.events.CloseContext(ctx); err != nil {
			c.logger.Warn("pending events abandoned on close", map[string]any{"timeout": c.closeTimeout.String()})
		}
		cancel()
	}
	if c.ledger != nil {
		if err := c.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newWebhookClient(cfg *config.Config) *webhook.Client {
	hooks := make([]webhook.Hook, 0, len(cfg.Webhooks))
	for _, wc := range cfg.Webhooks {
		hook := webhook.Hook{URL: wc.URL, Secret: wc.Secret, Timeout: wc.Timeout}
		for _, ev := range wc.Events {
			hook.Events = append(hook.Events, model.EventType(ev))
		}
		hooks = append(hooks, hook)
	}
	host, _ := os.Hostname()
	return webhook.NewClient(hooks, wait.Backoff{}, host)
}
