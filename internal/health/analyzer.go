// Package health inspects stored key records and reports which ones need
// operator attention. It only reads; rotation itself stays with the
// lifecycle engine.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/vtlabs/keywarden/internal/keys"
	"github.com/vtlabs/keywarden/internal/services"
	"github.com/vtlabs/keywarden/internal/store"
)

// Level grades a single key's condition.
type Level string

const (
	LevelOK      Level = "ok"
	LevelWarning Level = "warning" // lifetime threshold crossed, plan a rotation
	LevelExpired Level = "expired" // past expiry, rotate now
	LevelRevoked Level = "revoked"
)

// Severity grades a service-level alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Report is the per-key health assessment returned by CheckKeyHealth.
type Report struct {
	KeyID            string       `json:"key_id"`
	Service          keys.Service `json:"service"`
	Status           keys.Status  `json:"status"`
	Role             keys.Role    `json:"role"`
	Level            Level        `json:"level"`
	AgeInDays        int          `json:"age_in_days"`
	LifetimeConsumed float64      `json:"lifetime_consumed"`
	ExpiresAt        time.Time    `json:"expires_at"`
	Message          string       `json:"message"`
}

// Alert is one service-level finding from GetRotationAlerts.
type Alert struct {
	Service  keys.Service `json:"service"`
	KeyID    string       `json:"key_id,omitempty"`
	Severity Severity     `json:"severity"`
	Message  string       `json:"message"`
}

// Analyzer evaluates records against each service's lifetime policy.
type Analyzer struct {
	store    store.Store
	registry *services.Registry
	metrics  *Metrics

	now func() time.Time
}

// NewAnalyzer builds an Analyzer. metrics may be nil when the metrics
// endpoint is disabled.
func NewAnalyzer(st store.Store, registry *services.Registry, metrics *Metrics) *Analyzer {
	return &Analyzer{store: st, registry: registry, metrics: metrics, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// CheckKeyHealth grades a single key record.
func (a *Analyzer) CheckKeyHealth(ctx context.Context, keyID string) (Report, error) {
	record, err := a.store.Get(ctx, keyID)
	if err != nil {
		return Report{}, err
	}
	return a.assess(record), nil
}

// CheckHealth grades every stored record, newest first. Revoked records
// are included so the report doubles as a lifecycle overview.
func (a *Analyzer) CheckHealth(ctx context.Context) ([]Report, error) {
	records, err := a.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]Report, 0, len(records))
	for _, record := range records {
		reports = append(reports, a.assess(record))
	}
	return reports, nil
}

func (a *Analyzer) assess(record *keys.Record) Report {
	now := a.now().UTC()
	report := Report{
		KeyID:            record.ID,
		Service:          record.Service,
		Status:           record.Status,
		Role:             record.Role,
		AgeInDays:        record.AgeInDays(now),
		LifetimeConsumed: record.LifetimeConsumed(now),
		ExpiresAt:        record.ExpiresAt,
	}

	threshold := services.DefaultLifetimePolicy().WarningThreshold
	if policy, err := a.registry.Lookup(record.Service); err == nil {
		threshold = policy.WarningThreshold
	}

	switch {
	case record.Status == keys.StatusRevoked:
		report.Level = LevelRevoked
		report.Message = "key is revoked"
	case !now.Before(record.ExpiresAt):
		report.Level = LevelExpired
		report.Message = fmt.Sprintf("key expired %s ago", now.Sub(record.ExpiresAt).Round(time.Hour))
	case report.LifetimeConsumed >= threshold:
		report.Level = LevelWarning
		report.Message = fmt.Sprintf("key has consumed %.0f%% of its lifetime", report.LifetimeConsumed*100)
	default:
		report.Level = LevelOK
		report.Message = "key is within its lifetime"
	}
	return report
}

// GetRotationAlerts scans every registered service and reports what needs
// attention: aging primaries (warning), expired usable keys (error) and
// services with no active primary at all (critical).
func (a *Analyzer) GetRotationAlerts(ctx context.Context) ([]Alert, error) {
	records, err := a.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	now := a.now().UTC()

	byService := make(map[keys.Service][]*keys.Record)
	for _, record := range records {
		byService[record.Service] = append(byService[record.Service], record)
	}

	var alerts []Alert
	for _, name := range a.registry.Names() {
		svc := keys.Service(name)
		svcRecords := byService[svc]

		threshold := services.DefaultLifetimePolicy().WarningThreshold
		if policy, err := a.registry.Lookup(svc); err == nil {
			threshold = policy.WarningThreshold
		}

		var primary *keys.Record
		for _, record := range svcRecords {
			if record.IsPrimary() {
				primary = record
				break
			}
		}

		if primary == nil {
			alerts = append(alerts, Alert{
				Service:  svc,
				Severity: SeverityCritical,
				Message:  "no active primary key: the service cannot authenticate",
			})
		} else if primary.LifetimeConsumed(now) >= threshold {
			alerts = append(alerts, Alert{
				Service:  svc,
				KeyID:    primary.ID,
				Severity: SeverityWarning,
				Message: fmt.Sprintf("primary key has consumed %.0f%% of its lifetime, schedule a rotation",
					primary.LifetimeConsumed(now)*100),
			})
		}

		for _, record := range svcRecords {
			if record.Usable() && !now.Before(record.ExpiresAt) {
				alerts = append(alerts, Alert{
					Service:  svc,
					KeyID:    record.ID,
					Severity: SeverityError,
					Message:  fmt.Sprintf("%s key is past its expiry and still usable", record.Status),
				})
			}
		}

		a.metrics.RecordServiceHealth(string(svc), primary != nil)
	}

	a.metrics.RecordAlertSweep(len(alerts))
	return alerts, nil
}
