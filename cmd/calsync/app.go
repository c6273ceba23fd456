package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/fbgallet/calsync/internal/auth"
	"github.com/fbgallet/calsync/internal/config"
	"github.com/fbgallet/calsync/internal/dedup"
	"github.com/fbgallet/calsync/internal/lock"
	"github.com/fbgallet/calsync/internal/metadata"
	"github.com/fbgallet/calsync/internal/recovery"
	"github.com/fbgallet/calsync/internal/remote"
	"github.com/fbgallet/calsync/internal/store"
	syncer "github.com/fbgallet/calsync/internal/sync"
)

// app wires the engines together for a single CLI invocation.
type app struct {
	cfg     *config.Config
	meta    *metadata.Store
	local   *store.Store
	runner  *syncer.Runner
	engines map[string]*syncer.Engine
	dedups  map[string]*dedup.Engine
	logger  *log.Logger
}

// newApp loads configuration and builds an engine per domain that has at
// least one enabled calendar. Domains without enabled calendars skip their
// provider's auth flow entirely.
func newApp(ctx context.Context, logger *log.Logger) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[calsync] ", log.LstdFlags)
	}

	meta, err := metadata.Open(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}
	if err := meta.InitSchemaContext(ctx); err != nil {
		meta.Close()
		return nil, err
	}

	local, err := store.New(cfg.StoreRoot, logger)
	if err != nil {
		meta.Close()
		return nil, err
	}

	domains := make(map[string]bool)
	for _, cal := range cfg.EnabledCalendars() {
		domains[cal.Domain] = true
	}

	locks := lock.NewManager()
	engines := make(map[string]*syncer.Engine)
	dedups := make(map[string]*dedup.Engine)
	opts := &syncer.Options{
		PastDays:   cfg.PastDays,
		FutureDays: cfg.FutureDays,
		Logger:     logger,
	}

	for domain := range domains {
		api, err := remoteAPI(ctx, domain, logger)
		if err != nil {
			meta.Close()
			return nil, err
		}
		ns := meta.Namespace(domain)
		rec := recovery.New(ns, local, logger)
		engines[domain] = syncer.New(local, api, ns, locks, rec, opts)
		dedups[domain] = dedup.New(api, ns, meta, logger)
	}

	return &app{
		cfg:     cfg,
		meta:    meta,
		local:   local,
		runner:  syncer.NewRunner(cfg, engines, logger),
		engines: engines,
		dedups:  dedups,
		logger:  logger,
	}, nil
}

func remoteAPI(ctx context.Context, domain string, logger *log.Logger) (remote.API, error) {
	switch domain {
	case metadata.DomainEvents:
		srv, err := auth.CalendarService(ctx)
		if err != nil {
			return nil, err
		}
		return remote.NewGoogleCalendar(srv, logger), nil
	case metadata.DomainTasks:
		srv, err := auth.TasksService(ctx)
		if err != nil {
			return nil, err
		}
		return remote.NewGoogleTasks(srv, logger), nil
	default:
		return nil, fmt.Errorf("unknown sync domain %q", domain)
	}
}

// openMetadata loads config and opens the metadata store without touching
// the remote providers. Offline commands (cleanup, status) use this so
// they never trigger an OAuth flow.
func openMetadata(ctx context.Context) (*config.Config, *metadata.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	meta, err := metadata.Open(cfg.MetadataPath)
	if err != nil {
		return nil, nil, err
	}
	if err := meta.InitSchemaContext(ctx); err != nil {
		meta.Close()
		return nil, nil, err
	}
	return cfg, meta, nil
}

func (a *app) Close() {
	if err := a.meta.Close(); err != nil {
		a.logger.Printf("Warning: failed to close metadata store: %v", err)
	}
}
