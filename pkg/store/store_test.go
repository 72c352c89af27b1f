package store_test

import (
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/store"
	"github.com/nstogner/desktopctl/pkg/store/jsonl"
)

func TestRunLog(t *testing.T) {
	mgr, err := jsonl.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	run, err := mgr.NewRun(store.Header{Mode: store.ModeModel, Task: "Find the Submit button"})
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	id := run.ID()
	if id == "" {
		t.Fatal("expected generated id")
	}

	shot := domain.ActionResult{Output: "clicked", Image: []byte("png")}
	history := []domain.Message{
		domain.NewTextMessage(domain.RoleUser, "Find the Submit button"),
		{Role: domain.RoleAssistant, Content: []domain.Content{
			domain.ToolUseBlock("1", "computer", map[string]any{"action": "left_click"}),
		}},
		{Role: domain.RoleUser, Content: []domain.Content{domain.ToolResultBlock("1", shot)}},
	}
	if err := run.AppendMessages(history...); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}
	if err := run.SetStatus(store.StatusFailed, errors.New("boom")); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := run.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	loaded, err := mgr.LoadRun(id)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	defer loaded.Close()

	if loaded.Header().Task != "Find the Submit button" {
		t.Errorf("unexpected header %+v", loaded.Header())
	}
	if loaded.Status() != store.StatusFailed {
		t.Errorf("expected failed status, got %q", loaded.Status())
	}

	want := []domain.Message{
		history[0],
		history[1],
		{Role: domain.RoleUser, Content: []domain.Content{domain.ToolResultBlock("1", domain.OK("clicked"))}},
	}
	if diff := cmp.Diff(want, loaded.Messages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}

	// Continue the same log.
	if err := loaded.AppendMessages(domain.NewTextMessage(domain.RoleAssistant, "Done.")); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	infos, err := mgr.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != id || infos[0].MessageCount != 4 {
		t.Errorf("unexpected run infos %+v", infos)
	}
}

func TestListRuns_SkipsGarbage(t *testing.T) {
	dir := t.TempDir()
	mgr, err := jsonl.NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := os.WriteFile(dir+"/junk.jsonl", []byte("not json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run, err := mgr.NewRun(store.Header{Mode: store.ModeScript, Script: "nike-notify"})
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	run.AppendStep(store.StepEntry{Index: 0, Name: "key \"Return\""})
	run.Close()

	infos, err := mgr.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(infos) != 1 || infos[0].Mode != store.ModeScript {
		t.Errorf("unexpected run infos %+v", infos)
	}
}

func TestLoadRun_Missing(t *testing.T) {
	mgr, _ := jsonl.NewManager(t.TempDir())
	if _, err := mgr.LoadRun("nope"); err == nil {
		t.Error("expected error")
	}
}
