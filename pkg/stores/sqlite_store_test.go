package stores

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/hostprov/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.CreateRun(ctx, &Run{ID: "r1", Plan: "wiki", State: "init", StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopening runs the migrations again without losing data.
	store, err = Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()
	if _, err := store.GetRun(ctx, "r1"); err != nil {
		t.Fatalf("GetRun() after reopen error = %v", err)
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "stage_results"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("NewSQLiteStore() error = nil, want error for empty path")
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	run := &Run{
		ID:         "run-1",
		Plan:       "wiki",
		ConfigPath: "/etc/hostprov/wiki.yaml",
		Target:     "local",
		State:      "init",
		StartedAt:  started,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	stages := []*StageRecord{
		{RunID: "run-1", Stage: "sanitize", Phase: "sanitizing", Status: "performed", StartedAt: started, Duration: 120 * time.Millisecond,
			Notes: []string{"disabled 1 entry"}},
		{RunID: "run-1", Stage: "install-packages", Phase: "dependency_install", Status: "performed", StartedAt: started,
			Warnings: []Warning{{Code: "CACHE_REFRESH", Message: "refresh failed"}}},
		{RunID: "run-1", Stage: "runtime", Phase: "runtime_acquisition", Status: "failed", StartedAt: started,
			Error: strPtr("node not resolvable"), ErrorCode: "RUNTIME_UNAVAILABLE"},
	}
	for _, rec := range stages {
		if err := store.RecordStage(ctx, rec); err != nil {
			t.Fatalf("RecordStage(%s) error = %v", rec.Stage, err)
		}
	}

	finished := started.Add(2 * time.Minute)
	err := store.FinishRun(ctx, &Run{
		ID:          "run-1",
		State:       "aborted",
		Outcome:     "aborted",
		FailedPhase: "runtime_acquisition",
		FailedStage: "runtime",
		Error:       strPtr("node not resolvable"),
		ErrorCode:   "RUNTIME_UNAVAILABLE",
		FinishedAt:  &finished,
	})
	if err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.State != "aborted" || got.FailedStage != "runtime" || got.ErrorCode != "RUNTIME_UNAVAILABLE" {
		t.Errorf("GetRun() = %+v", got)
	}
	if got.ConfigPath != run.ConfigPath || got.Target != "local" {
		t.Errorf("metadata = %q %q", got.ConfigPath, got.Target)
	}
	if !got.Finished() || got.Duration() != 2*time.Minute {
		t.Errorf("Duration() = %s, want 2m", got.Duration())
	}
	if len(got.Stages) != 3 {
		t.Fatalf("Stages = %d, want 3", len(got.Stages))
	}
	for i, s := range got.Stages {
		if s.Seq != i+1 || s.Stage != stages[i].Stage {
			t.Errorf("stage %d = %d %s, want %d %s", i, s.Seq, s.Stage, i+1, stages[i].Stage)
		}
	}
	if got.Stages[0].Duration != 120*time.Millisecond || len(got.Stages[0].Notes) != 1 {
		t.Errorf("stage 0 = %+v", got.Stages[0])
	}
	if len(got.Stages[1].Warnings) != 1 || got.Stages[1].Warnings[0].Code != "CACHE_REFRESH" {
		t.Errorf("stage 1 warnings = %+v", got.Stages[1].Warnings)
	}
	if got.Stages[2].Error == nil || *got.Stages[2].Error != "node not resolvable" {
		t.Errorf("stage 2 error = %v", got.Stages[2].Error)
	}
}

func TestRecordStage_DuplicateStage(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := store.CreateRun(ctx, &Run{ID: "r", Plan: "p", State: "init", StartedAt: now}); err != nil {
		t.Fatal(err)
	}
	rec := &StageRecord{RunID: "r", Stage: "sanitize", Phase: "sanitizing", Status: "skipped", StartedAt: now}
	if err := store.RecordStage(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordStage(ctx, rec); err == nil {
		t.Error("RecordStage() twice error = nil, want constraint error")
	}
}

func TestRecordStage_UnknownRun(t *testing.T) {
	store := setupTestStore(t)
	rec := &StageRecord{RunID: "missing", Stage: "sanitize", Phase: "sanitizing", Status: "skipped", StartedAt: time.Now()}
	if err := store.RecordStage(context.Background(), rec); err == nil {
		t.Error("RecordStage() error = nil, want foreign key error")
	}
}

func TestGetRun_NotFound(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.GetRun(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetRun() error = %v, want ErrNotFound", err)
	}
	if err := store.FinishRun(context.Background(), &Run{ID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun() error = %v, want ErrNotFound", err)
	}
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		plan := "wiki"
		if i%2 == 1 {
			plan = "blog"
		}
		run := &Run{ID: fmt.Sprintf("run-%d", i), Plan: plan, State: "init", StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(all) != 5 || all[0].ID != "run-4" || all[4].ID != "run-0" {
		t.Fatalf("ListRuns() order = %v", ids(all))
	}

	page, _ := store.ListRuns(ctx, RunFilter{Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].ID != "run-3" {
		t.Errorf("page = %v, want [run-3 run-2]", ids(page))
	}

	wiki, _ := store.ListRuns(ctx, RunFilter{Plan: "wiki"})
	if len(wiki) != 3 {
		t.Errorf("wiki runs = %v, want 3", ids(wiki))
	}

	latest, err := store.LatestRun(ctx, "blog")
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if latest.ID != "run-3" {
		t.Errorf("LatestRun() = %s, want run-3", latest.ID)
	}
	if _, err := store.LatestRun(ctx, "none"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestRun(none) error = %v, want ErrNotFound", err)
	}
}

func TestPruneAndDeleteRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("run-%d", i)
		if err := store.CreateRun(ctx, &Run{ID: id, Plan: "p", State: "init", StartedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatal(err)
		}
		if err := store.RecordStage(ctx, &StageRecord{RunID: id, Stage: "sanitize", Phase: "sanitizing", Status: "skipped", StartedAt: base}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.PruneRuns(ctx, 2)
	if err != nil {
		t.Fatalf("PruneRuns() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PruneRuns() deleted %d, want 2", n)
	}

	var orphans int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stage_results WHERE run_id IN ('run-0', 'run-1')").Scan(&orphans); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("stage results of pruned runs = %d, want cascade delete", orphans)
	}

	if err := store.DeleteRun(ctx, "run-3"); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	if err := store.DeleteRun(ctx, "run-3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteRun() error = %v, want ErrNotFound", err)
	}
	left, _ := store.ListRuns(ctx, RunFilter{})
	if len(left) != 1 || left[0].ID != "run-2" {
		t.Errorf("remaining = %v, want [run-2]", ids(left))
	}
}

func TestRecorder_WithOrchestrator(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	plan := &engine.Plan{
		Name: "wiki",
		Stages: []engine.Stage{
			{
				Name:         "sanitize",
				Phase:        engine.StateSanitizing,
				Precondition: func(context.Context) bool { return true },
				Action:       func(context.Context, *engine.Report) error { return nil },
			},
			{
				Name:  "install-packages",
				Phase: engine.StateDependencyInstall,
				Action: func(_ context.Context, rep *engine.Report) error {
					rep.Note("installed 2 packages")
					rep.Warn(engine.NewDegradedError("cache refresh failed", nil).WithCode(engine.ErrCodeCacheRefresh))
					return nil
				},
			},
			{
				Name:  "runtime",
				Phase: engine.StateRuntimeAcquisition,
				Action: func(context.Context, *engine.Report) error {
					return engine.NewFatalError("node not resolvable", nil).WithCode(engine.ErrCodeRuntimeUnavailable)
				},
			},
			{
				Name:   "render-config",
				Phase:  engine.StateConfigGeneration,
				Action: func(context.Context, *engine.Report) error { return nil },
			},
		},
	}

	rec := NewRecorder(store, RunMeta{ConfigPath: "wiki.yaml", Target: "local"})
	orch := engine.NewOrchestrator(nil, engine.WithRecorder(rec), engine.WithIDGenerator(func() string { return "fixed" }))
	report, err := orch.Run(ctx, plan)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.State != engine.StateAborted {
		t.Fatalf("State = %s, want aborted", report.State)
	}

	got, err := store.GetRun(ctx, "fixed")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.State != string(engine.StateAborted) || got.Outcome != string(engine.OutcomeAborted) {
		t.Errorf("run state = %s outcome = %s", got.State, got.Outcome)
	}
	if got.FailedStage != "runtime" || got.ErrorCode != engine.ErrCodeRuntimeUnavailable {
		t.Errorf("failed stage = %s code = %s", got.FailedStage, got.ErrorCode)
	}
	if got.Target != "local" || !got.Finished() {
		t.Errorf("run = %+v", got)
	}
	if len(got.Stages) != 3 {
		t.Fatalf("Stages = %d, want 3 (nothing after the fatal stage)", len(got.Stages))
	}
	if got.Stages[0].Status != string(engine.StageSkipped) {
		t.Errorf("sanitize status = %s, want skipped", got.Stages[0].Status)
	}
	if len(got.Stages[1].Warnings) != 1 || got.Stages[1].Warnings[0].Code != engine.ErrCodeCacheRefresh {
		t.Errorf("install warnings = %+v", got.Stages[1].Warnings)
	}
	if len(got.Stages[1].Notes) != 1 {
		t.Errorf("install notes = %v", got.Stages[1].Notes)
	}
	if got.Stages[2].Status != string(engine.StageFailed) {
		t.Errorf("runtime status = %s, want failed", got.Stages[2].Status)
	}
}

func strPtr(s string) *string { return &s }

func ids(runs []*Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
