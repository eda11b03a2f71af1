package housekeeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-housekeeper/internal/infrastructure/logging"
)

// Recorder persists a row per completed operation. Implemented by the
// history repository; nil disables recording.
type Recorder interface {
	RecordRun(ctx context.Context, operation string, ok bool, counts map[string]int, details map[string]any) error
}

// Notifier publishes operation events to interested listeners. Nil
// disables publishing.
type Notifier interface {
	PublishEvent(event string, payload any) error
}

// MetricsSink receives per-operation counters. Nil disables metrics.
type MetricsSink interface {
	WriteRunMetrics(operation string, counts map[string]int)
}

// Deps carries the engine's collaborators. Client, Store and Logger are
// required; the rest are optional.
type Deps struct {
	Client   Client
	Store    *Store
	Logger   *logging.Logger
	Recorder Recorder
	Notifier Notifier
	Metrics  MetricsSink

	// RulesPath overrides the conventional rule document locations.
	RulesPath string

	// FallbackAreaName is the catch-all area used when planning with
	// fallback enabled.
	FallbackAreaName string
}

// Engine ties snapshot fetching, auditing, planning, applying and
// rolling back together behind a single mutex. All mutating operations
// are serialized; concurrent callers block rather than interleave
// registry mutations.
type Engine struct {
	mu sync.Mutex

	client   Client
	store    *Store
	log      *logging.Logger
	recorder Recorder
	notifier Notifier
	metrics  MetricsSink

	rulesPath        string
	fallbackAreaName string
}

// New validates the required collaborators and builds an engine.
func New(deps Deps) (*Engine, error) {
	if deps.Client == nil {
		return nil, errors.New("housekeeper: registry client is required")
	}
	if deps.Store == nil {
		return nil, errors.New("housekeeper: store is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("housekeeper: logger is required")
	}
	fallback := deps.FallbackAreaName
	if fallback == "" {
		fallback = "Unassigned"
	}
	return &Engine{
		client:           deps.Client,
		store:            deps.Store,
		log:              deps.Logger.With("component", "engine"),
		recorder:         deps.Recorder,
		notifier:         deps.Notifier,
		metrics:          deps.Metrics,
		rulesPath:        deps.RulesPath,
		fallbackAreaName: fallback,
	}, nil
}

// Audit fetches a fresh snapshot and analyzes it without proposing or
// mutating anything.
func (e *Engine) Audit(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := FetchSnapshot(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	report := Audit(snap)

	counts := map[string]int{
		"devices_without_area":  len(report.DevicesWithoutArea),
		"entities_without_area": len(report.EntitiesWithoutEffectiveArea),
		"suffix_duplicates":     len(report.SuffixDuplicateEntities),
		"unique_id_duplicates":  len(report.UniqueIDDuplicates),
	}
	e.finishRun(ctx, "audit", true, counts, nil)
	e.log.Info("audit complete",
		"devices_without_area", counts["devices_without_area"],
		"entities_without_area", counts["entities_without_area"])
	return report, nil
}

// Plan fetches a fresh snapshot, loads the rule document, runs the full
// planning pipeline and persists the result as the current plan,
// replacing any previous one.
func (e *Engine) Plan(ctx context.Context, fallbackEnabled bool) (*Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := FetchSnapshot(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	rules, prov := LoadRules(e.rulesPath)
	if prov.Error != "" {
		e.log.Warn("rule document degraded to empty ruleset", "path", prov.Path, "error", prov.Error)
	}

	ignored, err := e.store.Ignored()
	if err != nil {
		return nil, fmt.Errorf("plan: load ignore set: %w", err)
	}

	plan := BuildPlan(snap, rules, prov, ignored, PlanOptions{
		IncludeFallback:  fallbackEnabled,
		FallbackAreaName: e.fallbackAreaName,
	})
	if err := e.store.SavePlan(plan); err != nil {
		return nil, fmt.Errorf("plan: persist: %w", err)
	}

	counts := map[string]int{
		"actions": len(plan.Actions),
		"ignored": plan.IgnoredCount,
	}
	e.finishRun(ctx, "plan", true, counts, nil)
	e.notify("plan_created", map[string]any{
		"actions": len(plan.Actions),
		"ignored": plan.IgnoredCount,
	})
	e.log.Info("plan created", "actions", len(plan.Actions), "ignored", plan.IgnoredCount)
	return plan, nil
}

// Apply replays the persisted plan against the registry. Actions
// requiring approval run only when their id appears in approvedIDs.
// The rollback record is persisted unconditionally, even when every
// action was skipped.
func (e *Engine) Apply(ctx context.Context, approvedIDs []string) (*ApplyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, err := e.store.LoadPlan()
	if err != nil {
		return nil, fmt.Errorf("apply: load plan: %w", err)
	}
	if plan == nil {
		return nil, ErrNoPlan
	}

	// Fresh snapshot so before-state reflects the registry as it is
	// now, not as it was when the plan was made.
	snap, err := FetchSnapshot(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}

	result := runApply(ctx, e.client, snap, plan, approvedIDs)
	if err := e.store.SaveRollback(result.Rollback); err != nil {
		return nil, fmt.Errorf("apply: persist rollback record: %w", err)
	}

	counts := map[string]int{
		"applied": len(result.AppliedActionIDs),
		"skipped": len(result.Skipped),
	}
	e.finishRun(ctx, "apply", true, counts, nil)
	e.notify("apply_finished", counts)
	e.log.Info("apply complete", "applied", counts["applied"], "skipped", counts["skipped"])
	return result, nil
}

// Rollback undoes the most recent apply run, best-effort, in reverse
// step order.
func (e *Engine) Rollback(ctx context.Context) (*RollbackResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	record, err := e.store.LoadRollback()
	if err != nil {
		return nil, fmt.Errorf("rollback: load record: %w", err)
	}
	if record == nil {
		return nil, ErrNoRollback
	}

	result := runRollback(ctx, e.client, record)

	counts := map[string]int{
		"reverted": result.Reverted,
		"errors":   len(result.Errors),
	}
	e.finishRun(ctx, "rollback", result.OK, counts, nil)
	e.notify("rollback_finished", counts)
	e.log.Info("rollback complete", "ok", result.OK, "reverted", result.Reverted, "errors", len(result.Errors))
	return result, nil
}

// GetPlan returns the persisted current plan, or ErrNoPlan.
func (e *Engine) GetPlan() (*Plan, error) {
	plan, err := e.store.LoadPlan()
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrNoPlan
	}
	return plan, nil
}

// GetRollback returns the persisted rollback record, or ErrNoRollback.
func (e *Engine) GetRollback() (*RollbackRecord, error) {
	record, err := e.store.LoadRollback()
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNoRollback
	}
	return record, nil
}

// Ignore adds fingerprints to the persisted ignore set and returns the
// updated set. Adding a fingerprint that is already present is a no-op.
func (e *Engine) Ignore(fingerprints []string) ([]string, error) {
	return e.store.AddIgnored(fingerprints)
}

// Unignore removes fingerprints from the persisted ignore set and
// returns the updated set.
func (e *Engine) Unignore(fingerprints []string) ([]string, error) {
	return e.store.RemoveIgnored(fingerprints)
}

// ClearIgnored empties the ignore set.
func (e *Engine) ClearIgnored() error {
	return e.store.ClearIgnored()
}

// Ignored lists the ignore set, sorted.
func (e *Engine) Ignored() ([]string, error) {
	return e.store.Ignored()
}

// HealthStatus reports registry reachability and persisted-state
// presence for the health endpoint.
type HealthStatus struct {
	Status      string    `json:"status"`
	RegistryURL string    `json:"registry_url"`
	HasPlan     bool      `json:"has_plan"`
	HasRollback bool      `json:"has_rollback"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Health checks that the registry connection can be established and
// reports whether a plan and rollback record are present.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:      "ok",
		RegistryURL: e.client.URL(),
		CheckedAt:   time.Now().UTC(),
	}
	if err := e.client.Connect(ctx); err != nil {
		status.Status = "degraded: " + err.Error()
	}
	if plan, err := e.store.LoadPlan(); err == nil && plan != nil {
		status.HasPlan = true
	}
	if record, err := e.store.LoadRollback(); err == nil && record != nil {
		status.HasRollback = true
	}
	return status
}

// finishRun fans the outcome of one operation out to the optional
// recorder and metrics sink. Failures are logged and swallowed; side
// channels never fail the operation itself.
func (e *Engine) finishRun(ctx context.Context, operation string, ok bool, counts map[string]int, details map[string]any) {
	if e.recorder != nil {
		if err := e.recorder.RecordRun(ctx, operation, ok, counts, details); err != nil {
			e.log.Warn("run history write failed", "operation", operation, "error", err)
		}
	}
	if e.metrics != nil {
		e.metrics.WriteRunMetrics(operation, counts)
	}
}

func (e *Engine) notify(event string, payload any) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.PublishEvent(event, payload); err != nil {
		e.log.Warn("event publish failed", "event", event, "error", err)
	}
}
