package housekeeper

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-housekeeper/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-housekeeper/internal/registry"
)

// recordedRun is one RecordRun invocation captured by the spy recorder.
type recordedRun struct {
	operation string
	ok        bool
	counts    map[string]int
}

type spyRecorder struct {
	runs []recordedRun
	err  error
}

func (s *spyRecorder) RecordRun(_ context.Context, operation string, ok bool, counts map[string]int, _ map[string]any) error {
	s.runs = append(s.runs, recordedRun{operation: operation, ok: ok, counts: counts})
	return s.err
}

type spyNotifier struct {
	events []string
	err    error
}

func (s *spyNotifier) PublishEvent(event string, _ any) error {
	s.events = append(s.events, event)
	return s.err
}

type spyMetrics struct {
	operations []string
}

func (s *spyMetrics) WriteRunMetrics(operation string, _ map[string]int) {
	s.operations = append(s.operations, operation)
}

// newTestEngine wires an engine around the fake registry with all side
// channels attached.
func newTestEngine(t *testing.T, client Client) (*Engine, *spyRecorder, *spyNotifier, *spyMetrics) {
	t.Helper()
	store := newTestStore(t)
	recorder := &spyRecorder{}
	notifier := &spyNotifier{}
	metrics := &spyMetrics{}
	engine, err := New(Deps{
		Client:    client,
		Store:     store,
		Logger:    logging.Default(),
		Recorder:  recorder,
		Notifier:  notifier,
		Metrics:   metrics,
		RulesPath: "/nonexistent/rules.yaml",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return engine, recorder, notifier, metrics
}

func TestNewRequiresCollaborators(t *testing.T) {
	store := newTestStore(t)
	log := logging.Default()

	tests := []struct {
		name string
		deps Deps
	}{
		{"no client", Deps{Store: store, Logger: log}},
		{"no store", Deps{Client: newFakeClient(), Logger: log}},
		{"no logger", Deps{Client: newFakeClient(), Store: store}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() expected an error")
			}
		})
	}
}

func TestEngineApplyWithoutPlan(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, newFakeClient())

	if _, err := engine.Apply(context.Background(), nil); !errors.Is(err, ErrNoPlan) {
		t.Errorf("Apply() error = %v, want ErrNoPlan", err)
	}
}

func TestEngineRollbackWithoutRecord(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, newFakeClient())

	if _, err := engine.Rollback(context.Background()); !errors.Is(err, ErrNoRollback) {
		t.Errorf("Rollback() error = %v, want ErrNoRollback", err)
	}
	if _, err := engine.GetPlan(); !errors.Is(err, ErrNoPlan) {
		t.Errorf("GetPlan() error = %v, want ErrNoPlan", err)
	}
	if _, err := engine.GetRollback(); !errors.Is(err, ErrNoRollback) {
		t.Errorf("GetRollback() error = %v, want ErrNoRollback", err)
	}
}

// Full cycle: audit, plan, apply with approvals, rollback.
func TestEngineFullCycle(t *testing.T) {
	client := newFakeClient()
	client.areas = []registry.Area{{ID: "kitchen", Name: "Kitchen"}}
	client.devices = []registry.Device{{ID: "d1", AreaID: "kitchen"}}
	client.entities = []registry.Entity{
		{EntityID: "light.hob", DeviceID: "d1"},
		{EntityID: "sensor.kitchen_temp"},
		{EntityID: "sensor.kitchen_temp_2"}, // stale duplicate, no live state
	}
	client.states = []registry.State{
		activeState("light.hob"),
		activeState("sensor.kitchen_temp"),
	}
	engine, recorder, notifier, metrics := newTestEngine(t, client)
	ctx := context.Background()

	report, err := engine.Audit(ctx)
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	if report.Counts.EntitiesWithoutEffectiveArea != 2 {
		t.Errorf("entities without area = %d, want 2", report.Counts.EntitiesWithoutEffectiveArea)
	}

	plan, err := engine.Plan(ctx, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Actions) == 0 {
		t.Fatal("expected a non-empty plan")
	}
	if got, err := engine.GetPlan(); err != nil || len(got.Actions) != len(plan.Actions) {
		t.Fatalf("GetPlan() = %v, %v", got, err)
	}

	// Approve everything so the suffix duplicate removal runs too.
	var approved []string
	for _, a := range plan.Actions {
		approved = append(approved, a.ID)
	}
	result, err := engine.Apply(ctx, approved)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(result.AppliedActionIDs) != len(plan.Actions) {
		t.Fatalf("applied = %v, skipped = %+v", result.AppliedActionIDs, result.Skipped)
	}
	if e, _ := client.entity("light.hob"); e.AreaID != "kitchen" {
		t.Errorf("light.hob area = %q after apply", e.AreaID)
	}
	if _, ok := client.entity("sensor.kitchen_temp_2"); ok {
		t.Error("suffix duplicate still present after apply")
	}

	rollback, err := engine.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if !rollback.OK {
		t.Fatalf("rollback = %+v", rollback)
	}
	if e, _ := client.entity("light.hob"); e.AreaID != "" {
		t.Errorf("light.hob area = %q after rollback, want cleared", e.AreaID)
	}

	wantOps := []string{"audit", "plan", "apply", "rollback"}
	if len(recorder.runs) != len(wantOps) {
		t.Fatalf("recorded runs = %+v", recorder.runs)
	}
	for i, op := range wantOps {
		if recorder.runs[i].operation != op || !recorder.runs[i].ok {
			t.Errorf("run %d = %+v, want ok %s", i, recorder.runs[i], op)
		}
	}
	if len(metrics.operations) != len(wantOps) {
		t.Errorf("metric writes = %v", metrics.operations)
	}
	wantEvents := []string{"plan_created", "apply_finished", "rollback_finished"}
	for i, event := range wantEvents {
		if i >= len(notifier.events) || notifier.events[i] != event {
			t.Fatalf("events = %v, want %v", notifier.events, wantEvents)
		}
	}
}

// The rollback record persists even when every action was gated.
func TestEngineApplyPersistsEmptyRollback(t *testing.T) {
	client := newFakeClient()
	client.entities = []registry.Entity{{EntityID: "sensor.kitchen_temp"}, {EntityID: "sensor.kitchen_temp_2"}}
	engine, _, _, _ := newTestEngine(t, client)
	ctx := context.Background()

	plan, err := engine.Plan(ctx, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Actions) != 1 || !plan.Actions[0].RequiresApproval {
		t.Fatalf("plan = %+v, want one gated action", plan.Actions)
	}

	result, err := engine.Apply(ctx, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(result.AppliedActionIDs) != 0 || len(result.Skipped) != 1 {
		t.Fatalf("result = %+v", result)
	}

	record, err := engine.GetRollback()
	if err != nil {
		t.Fatalf("GetRollback() error = %v", err)
	}
	if len(record.Steps) != 0 {
		t.Errorf("rollback steps = %+v, want none", record.Steps)
	}
}

func TestEngineIgnoreLifecycle(t *testing.T) {
	client := newFakeClient()
	client.areas = []registry.Area{{ID: "kitchen", Name: "Kitchen"}}
	client.devices = []registry.Device{{ID: "d1", AreaID: "kitchen"}}
	client.entities = []registry.Entity{{EntityID: "light.hob", DeviceID: "d1"}}
	client.states = []registry.State{activeState("light.hob")}
	engine, _, _, _ := newTestEngine(t, client)
	ctx := context.Background()

	plan, err := engine.Plan(ctx, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Actions) != 1 {
		t.Fatalf("plan = %+v", plan.Actions)
	}
	fp := Fingerprint(plan.Actions[0])

	if _, err := engine.Ignore([]string{fp}); err != nil {
		t.Fatalf("Ignore() error = %v", err)
	}
	plan, err = engine.Plan(ctx, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Actions) != 0 || plan.IgnoredCount != 1 {
		t.Errorf("suppressed plan = %+v", plan)
	}

	if _, err := engine.Unignore([]string{fp}); err != nil {
		t.Fatalf("Unignore() error = %v", err)
	}
	plan, err = engine.Plan(ctx, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Actions) != 1 {
		t.Errorf("plan after unignore = %+v", plan.Actions)
	}
}

// Side-channel failures never fail the operation itself.
func TestEngineSideChannelFailuresSwallowed(t *testing.T) {
	client := newFakeClient()
	engine, recorder, notifier, _ := newTestEngine(t, client)
	recorder.err = errors.New("history db unavailable")
	notifier.err = errors.New("broker down")

	if _, err := engine.Plan(context.Background(), false); err != nil {
		t.Errorf("Plan() error = %v, want side-channel failures swallowed", err)
	}
}

func TestEngineHealth(t *testing.T) {
	client := newFakeClient()
	engine, _, _, _ := newTestEngine(t, client)

	status := engine.Health(context.Background())
	if status.Status != "ok" || status.HasPlan || status.HasRollback {
		t.Errorf("status = %+v", status)
	}
	if status.RegistryURL != "ws://fake/websocket" {
		t.Errorf("registry url = %q", status.RegistryURL)
	}

	if _, err := engine.Plan(context.Background(), false); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	status = engine.Health(context.Background())
	if !status.HasPlan {
		t.Error("HasPlan = false after planning")
	}
}
