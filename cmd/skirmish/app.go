package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pario-ai/skirmish/pkg/alert"
	"github.com/pario-ai/skirmish/pkg/archive"
	"github.com/pario-ai/skirmish/pkg/battle"
	"github.com/pario-ai/skirmish/pkg/budget"
	"github.com/pario-ai/skirmish/pkg/clients"
	"github.com/pario-ai/skirmish/pkg/config"
	"github.com/pario-ai/skirmish/pkg/ledger"
	"github.com/pario-ai/skirmish/pkg/logging"
	"github.com/pario-ai/skirmish/pkg/models"
	"github.com/pario-ai/skirmish/pkg/pricing"
	"github.com/pario-ai/skirmish/pkg/rescache"
	"github.com/pario-ai/skirmish/pkg/router"
)

// app holds the components opened for one command. Optional components are
// nil until their open method is called.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	ledger   *ledger.SQLiteLedger
	governor *budget.Governor
	cache    *rescache.Cache
	archive  *archive.Archive

	closers []func() error
}

// openApp loads and validates configuration, builds the logger and opens the
// ledger and budget governor every command needs.
func openApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Service:     "skirmish",
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	l, err := ledger.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	a.ledger = l
	a.closers = append(a.closers, l.Close)

	notifier := a.notifier()
	a.governor = budget.New(l, budget.Options{
		Environment:      cfg.Environment,
		DailyCap:         decimal.NewFromFloat(cfg.Budget.DailyCap),
		ThrottleFraction: cfg.Budget.ThrottleFraction,
		KillSwitch:       cfg.Budget.KillSwitch,
		Notifier:         notifier,
		AlertTimeout:     cfg.Alerts.Timeout,
		Logger:           logger,
	})
	return a, nil
}

func (a *app) notifier() alert.Notifier {
	var sinks alert.Multi
	if a.cfg.Alerts.WebhookURL != "" {
		sinks = append(sinks, alert.NewWebhook(a.cfg.Alerts.WebhookURL, &http.Client{Timeout: a.cfg.Alerts.Timeout}))
	}
	if k := a.cfg.Alerts.Kafka; len(k.Brokers) > 0 && k.Topic != "" {
		kafka := alert.NewKafka(k.Brokers, k.Topic)
		a.closers = append(a.closers, kafka.Close)
		sinks = append(sinks, kafka)
	}
	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

// openCache opens the resource cache on the configured backend. The
// provisioner is attached only when one is configured.
func (a *app) openCache(ctx context.Context) (*rescache.Cache, error) {
	if a.cache != nil {
		return a.cache, nil
	}

	var store rescache.Store
	switch a.cfg.Cache.Backend {
	case "redis":
		rc := a.cfg.Cache.Redis
		client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", rc.Addr, err)
		}
		store = rescache.NewRedisStore(client, rc.Prefix)
	default:
		s, err := rescache.NewSQLiteStore(a.cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open cache store: %w", err)
		}
		store = s
	}

	var provisioner rescache.Provisioner
	if a.cfg.Provisioner.URL != "" {
		provisioner = clients.NewProvisionerClient(a.cfg.Provisioner, a.logger)
	}
	a.cache = rescache.New(store, provisioner, rescache.Options{
		TTL:            a.cfg.Cache.TTL,
		Capacity:       a.cfg.Cache.Capacity,
		AcquireTimeout: a.cfg.Cache.AcquireTimeout,
		Logger:         a.logger,
	})
	a.closers = append(a.closers, a.cache.Close)
	return a.cache, nil
}

// openArchive opens the battle archive, or returns nil when it is disabled.
func (a *app) openArchive() (*archive.Archive, error) {
	if a.archive != nil || !a.cfg.Archive.Enabled {
		return a.archive, nil
	}
	arch, err := archive.New(models.ArchiveConfig{
		DBPath:        a.cfg.DBPath,
		RetentionDays: a.cfg.Archive.RetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a.archive = arch
	a.closers = append(a.closers, arch.Close)
	return arch, nil
}

// newEngine wires a battle engine from configuration. Pricing and routing
// problems surface here, before any battle starts.
func (a *app) newEngine(ctx context.Context) (*battle.Engine, error) {
	table, err := pricing.New(a.cfg.Pricing)
	if err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if err := router.New(a.cfg.Reasoning).Validate(); err != nil {
		return nil, err
	}

	deps := battle.Deps{
		Reasoner: clients.NewReasoningClient(a.cfg.Reasoning, a.logger),
		Governor: a.governor,
		Pricer:   table,
		Ledger:   a.ledger,
	}
	if a.cfg.Referee.URL != "" {
		deps.Referee = clients.NewRefereeClient(a.cfg.Referee, a.logger)
	}
	if a.cfg.Provisioner.URL != "" {
		c, err := a.openCache(ctx)
		if err != nil {
			return nil, err
		}
		c.StartSweeper(a.cfg.Cache.SweepInterval)
		deps.Resources = c
	}
	arch, err := a.openArchive()
	if err != nil {
		return nil, err
	}
	if arch != nil {
		deps.Archive = arch
	}

	return battle.New(deps, battle.Options{
		Environment: a.cfg.Environment,
		MaxTurns:    a.cfg.Battle.MaxTurns,
		RoleA:       a.cfg.Battle.RoleA,
		Weights:     battle.Weights(a.cfg.Battle.Weights),
		Logger:      a.logger,
	})
}

// Close waits for pending alerts, then closes components in reverse order.
func (a *app) Close() {
	a.governor.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
