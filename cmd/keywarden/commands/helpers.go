package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/vtlabs/keywarden/internal/audit"
	"github.com/vtlabs/keywarden/internal/config"
	"github.com/vtlabs/keywarden/internal/health"
	"github.com/vtlabs/keywarden/internal/issuer"
	"github.com/vtlabs/keywarden/internal/keys"
	"github.com/vtlabs/keywarden/internal/lifecycle"
	"github.com/vtlabs/keywarden/internal/policy"
	"github.com/vtlabs/keywarden/internal/sealer"
	"github.com/vtlabs/keywarden/internal/store"
)

// app bundles the wired components a command needs. Built per invocation
// from the loaded configuration.
type app struct {
	cfg      *config.Config
	engine   *lifecycle.Engine
	analyzer *health.Analyzer
	trail    *audit.Trail
	store    store.Store
}

// newApp loads the configuration and wires the engine. The returned
// cleanup closes the store and must always be called.
func newApp(cfg *config.Config) (*app, func(), error) {
	if err := cfg.Load(); err != nil {
		return nil, nil, err
	}

	registry, err := cfg.BuildRegistry()
	if err != nil {
		return nil, nil, err
	}

	enforcer, err := policy.NewEnforcer(cfg.SecretPolicy())
	if err != nil {
		return nil, nil, err
	}

	seal, err := sealer.FromEnv(cfg.MasterKeyEnv())
	if err != nil {
		return nil, nil, err
	}

	dbPath := cfg.StoragePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, nil, fmt.Errorf("create storage directory: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}

	trail, err := audit.NewTrail(cfg.AuditLogPath())
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	health.InitMetrics()
	metrics := health.NewMetrics()

	engine := lifecycle.NewEngine(lifecycle.Options{
		Store:        st,
		Issuer:       issuer.New(registry, enforcer, seal, st),
		Sealer:       seal,
		Registry:     registry,
		Trail:        trail,
		Metrics:      metrics,
		Logger:       cfg.Logger,
		GuardTimeout: cfg.GuardTimeout(),
	})

	a := &app{
		cfg:      cfg,
		engine:   engine,
		analyzer: health.NewAnalyzer(st, registry, metrics),
		trail:    trail,
		store:    st,
	}
	return a, func() { st.Close() }, nil
}

// actor resolves who to record in the audit trail: the --actor flag,
// falling back to the invoking user.
func actor(cfg *config.Config) string {
	if cfg.Actor != "" {
		return cfg.Actor
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

// printViews renders key views as an aligned table.
func printViews(views []keys.View) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSERVICE\tSTATUS\tROLE\tREASON\tAGE\tEXPIRES\tEXTERNAL")
	for _, view := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dd\t%s\t%s\n",
			shortID(view.ID), view.Service, view.Status, view.Role,
			view.Reason, view.AgeInDays, view.ExpiresAt.Format("2006-01-02"),
			maskExternalID(view.ExternalKeyID))
	}
	w.Flush()
}

// maskExternalID keeps only the last four characters of a provider-side
// key id so tables stay greppable without spelling the id out.
func maskExternalID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) <= 4 {
		return "****"
	}
	return "****" + id[len(id)-4:]
}

// shortID abbreviates UUIDs for table output; full ids stay available via
// --json.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
