package store

import (
	"path/filepath"
	"testing"

	"github.com/matsen/lineage/internal/explore"
	"github.com/matsen/lineage/internal/paper"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleResult() (*explore.Result, []paper.Paper, explore.Config) {
	seed := paper.Paper{ID: "abc123", Title: "Seed Paper", Year: 2017}
	root := paper.NewThread("origin theme", seed)
	root.Append(paper.Paper{ID: "def456", Title: "Successor", Year: 2018, CitationCount: 12},
		"continues the lineage")
	sub := paper.NewThread("divergent theme",
		paper.Paper{ID: "ghi789", Title: "Divergent", Year: 2019})
	root.SubThreads = append(root.SubThreads, sub)

	res := &explore.Result{
		Status:  explore.StatusCompleted,
		Threads: []paper.Thread{*root},
		Log: []explore.Decision{
			{Type: explore.DecisionTheme, Message: "themes extracted",
				Data: map[string]any{"count": float64(1)}},
			{Type: explore.DecisionSelection, Message: "paper added to thread"},
		},
	}
	cfg := explore.DefaultConfig()
	cfg.PresentYear = 2025
	return res, []paper.Paper{seed}, cfg
}

func TestSaveAndGetRun(t *testing.T) {
	db := openTestDB(t)
	res, seeds, cfg := sampleResult()

	id, err := db.SaveRun(res, seeds, cfg)
	if err != nil {
		t.Fatalf("saving run: %v", err)
	}

	got, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("loading run: %v", err)
	}
	if got == nil {
		t.Fatal("saved run not found")
	}
	if got.Status != explore.StatusCompleted {
		t.Errorf("status = %s", got.Status)
	}
	if got.Config.PresentYear != 2025 {
		t.Errorf("config round-trip lost PresentYear: %d", got.Config.PresentYear)
	}
	if len(got.Seeds) != 1 || got.Seeds[0].Title != "Seed Paper" {
		t.Errorf("seeds round-trip: %+v", got.Seeds)
	}

	if len(got.Threads) != 1 {
		t.Fatalf("expected 1 root thread, got %d", len(got.Threads))
	}
	root := got.Threads[0]
	if root.Theme != "origin theme" || root.SpawnYear != 2017 {
		t.Errorf("root thread: theme=%q spawnYear=%d", root.Theme, root.SpawnYear)
	}
	if len(root.Papers) != 2 {
		t.Fatalf("expected 2 papers, got %d", len(root.Papers))
	}
	if root.Papers[1].SelectionReason != "continues the lineage" {
		t.Errorf("selection reason lost: %q", root.Papers[1].SelectionReason)
	}
	if root.SpawnPaper.Title != "Seed Paper" {
		t.Errorf("spawn paper not restored: %q", root.SpawnPaper.Title)
	}
	if len(root.SubThreads) != 1 {
		t.Fatalf("expected 1 sub-thread, got %d", len(root.SubThreads))
	}
	if root.SubThreads[0].Theme != "divergent theme" {
		t.Errorf("sub-thread theme = %q", root.SubThreads[0].Theme)
	}

	if len(got.Log) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(got.Log))
	}
	if got.Log[0].Type != explore.DecisionTheme {
		t.Errorf("decision order not preserved: %s", got.Log[0].Type)
	}
	if got.Log[0].Data["count"] != float64(1) {
		t.Errorf("decision data round-trip: %v", got.Log[0].Data)
	}
	if got.Log[1].Data != nil {
		t.Errorf("empty decision data must stay nil, got %v", got.Log[1].Data)
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetRun("no-such-run")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing run")
	}
}

func TestListRuns(t *testing.T) {
	db := openTestDB(t)
	res, seeds, cfg := sampleResult()

	if _, err := db.SaveRun(res, seeds, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SaveRun(res, seeds, cfg); err != nil {
		t.Fatal(err)
	}

	runs, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("listing runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	s := runs[0]
	if len(s.SeedTitles) != 1 || s.SeedTitles[0] != "Seed Paper" {
		t.Errorf("seed titles: %v", s.SeedTitles)
	}
	// One root plus one sub-thread; two papers in the root, one in the
	// sub-thread.
	if s.Threads != 2 {
		t.Errorf("thread count = %d, want 2", s.Threads)
	}
	if s.Papers != 3 {
		t.Errorf("paper count = %d, want 3", s.Papers)
	}

	limited, err := db.ListRuns(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit not applied: got %d runs", len(limited))
	}
}

func TestDeleteRun(t *testing.T) {
	db := openTestDB(t)
	res, seeds, cfg := sampleResult()

	id, err := db.SaveRun(res, seeds, cfg)
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := db.DeleteRun(id)
	if err != nil {
		t.Fatalf("deleting run: %v", err)
	}
	if !deleted {
		t.Fatal("expected deletion to report true")
	}

	got, err := db.GetRun(id)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("run still present after delete")
	}

	count, err := db.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("count = %d after delete", count)
	}

	deleted, err = db.DeleteRun(id)
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Error("second delete must report false")
	}
}
