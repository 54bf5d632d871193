package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/repositories"
	"github.com/desertthunder/progdb/internal/shared"
	tu "github.com/desertthunder/progdb/internal/testing"
)

// cliEnv is a temporary working area with a config file pointing at its own database.
type cliEnv struct {
	t          *testing.T
	dir        string
	configPath string
	dbPath     string
	output     *bytes.Buffer
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		t:          t,
		dir:        dir,
		configPath: filepath.Join(dir, "config.toml"),
		dbPath:     filepath.Join(dir, "progdb.db"),
		output:     &bytes.Buffer{},
	}

	conf := fmt.Sprintf("[database]\npath = %q\n", env.dbPath)
	if err := os.WriteFile(env.configPath, []byte(conf), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return env
}

// run executes the CLI with args and returns what it printed.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	return e.runWithConfig(e.configPath, args...)
}

func (e *cliEnv) runWithConfig(configPath string, args ...string) (string, error) {
	e.t.Helper()
	e.output.Reset()
	runner := NewRunner(RunnerOpts{Output: e.output, Logger: shared.NewLogger(io.Discard)})

	argv := append([]string{"progdb", "--config", configPath}, args...)
	err := runner.app().Run(context.Background(), argv)
	return e.output.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	if err != nil {
		e.t.Fatalf("progdb %s: %v\noutput:\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func (e *cliEnv) workbook() string {
	e.t.Helper()
	path := filepath.Join(e.dir, "releases.xlsx")
	tu.NewWorkbookBuilder(e.t).
		AddReleaseTab("2024 Prog-metal", release(1, "Opeth"), release(2, "Haken")).
		AddReleaseTab("Statistics").
		AddReleaseTab("2023", release(3, "Leprous")).
		Save(path)
	return path
}

func release(n int, artist string) tu.ReleaseRow {
	return tu.ReleaseRow{
		Artist:      artist,
		Album:       fmt.Sprintf("Album %d", n),
		ReleaseDate: "March 3",
		Genre:       "Progressive Metal",
		VocalStyle:  "Clean",
		Country:     "Norway",
		SpotifyID:   fmt.Sprintf("%022d", n),
	}
}

func TestSetupCommands(t *testing.T) {
	t.Run("setup config writes example", func(t *testing.T) {
		env := newCLIEnv(t)
		path := filepath.Join(env.dir, "fresh.toml")

		out, err := env.runWithConfig(path, "setup", "config")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(tu.MustReadFile(t, path), "[source]") {
			t.Error("expected example config contents")
		}
		if !strings.Contains(out, "Configuration written") {
			t.Errorf("unexpected output: %s", out)
		}
	})

	t.Run("setup config refuses to overwrite", func(t *testing.T) {
		env := newCLIEnv(t)
		if _, err := env.run("setup", "config"); err == nil {
			t.Fatal("expected error for existing config")
		}
	})

	t.Run("setup database migrates", func(t *testing.T) {
		env := newCLIEnv(t)
		out := env.mustRun("setup", "database")

		tu.AssertFileExists(t, env.dbPath)
		if !strings.Contains(out, "Database ready") {
			t.Errorf("unexpected output: %s", out)
		}

		status := env.mustRun("setup", "status")
		if !strings.Contains(status, "0 pending") {
			t.Errorf("expected no pending migrations, got %s", status)
		}
		if !strings.Contains(status, "Albums:    0") {
			t.Errorf("expected empty catalog, got %s", status)
		}
	})
}

func TestSyncCommands(t *testing.T) {
	t.Run("status before any sync", func(t *testing.T) {
		env := newCLIEnv(t)
		if out := env.mustRun("sync", "status"); !strings.Contains(out, "No sync has run yet") {
			t.Errorf("unexpected output: %s", out)
		}
	})

	t.Run("cancel without a sync", func(t *testing.T) {
		env := newCLIEnv(t)
		if out := env.mustRun("sync", "cancel"); !strings.Contains(out, "No sync in progress") {
			t.Errorf("unexpected output: %s", out)
		}
	})

	t.Run("local watch refuses a run owned by another process", func(t *testing.T) {
		env := newCLIEnv(t)
		wb := env.workbook()

		db, err := shared.NewDatabase(env.dbPath)
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if err := shared.RunMigrations(db); err != nil {
			t.Fatalf("failed to migrate: %v", err)
		}
		live := models.NewSyncOperation("127.0.0.1")
		if err := repositories.NewSyncOperationRepository(db).CreateIfNoneActive(live); err != nil {
			t.Fatalf("failed to create operation: %v", err)
		}
		db.Close()

		_, err = env.run("sync", "watch", "--local", "--file", wb, "--log-file", filepath.Join(env.dir, "watch.log"))
		if !errors.Is(err, shared.ErrSyncActive) {
			t.Fatalf("expected ErrSyncActive, got %v", err)
		}

		out := env.mustRun("sync", "status", "--format", "json")
		if !strings.Contains(out, live.ID()) || !strings.Contains(out, `"pending"`) {
			t.Errorf("expected the live run to stay pending, got %s", out)
		}
	})

	t.Run("run imports every in-scope tab", func(t *testing.T) {
		env := newCLIEnv(t)
		wb := env.workbook()

		out := env.mustRun("sync", "run", "--file", wb)
		for _, want := range []string{"Found 2 release tabs", "Sync completed", "Created: 3", "Catalog: 3 albums"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
		if strings.Index(out, "2023") > strings.Index(out, "2024 Prog-metal") {
			t.Errorf("expected 2023 to be processed first:\n%s", out)
		}

		status := env.mustRun("sync", "status", "--format", "json")
		if !strings.Contains(status, `"status": "completed"`) {
			t.Errorf("expected completed status, got %s", status)
		}
		if !strings.Contains(status, `"albums_processed": 3`) {
			t.Errorf("expected 3 processed albums, got %s", status)
		}

		again := env.mustRun("sync", "run", "--file", wb)
		if !strings.Contains(again, "Created: 0  Updated: 0  Skipped: 3") {
			t.Errorf("expected second run to skip known albums:\n%s", again)
		}

		history := env.mustRun("sync", "history", "--format", "json")
		if strings.Count(history, `"sync_operation_id"`) != 2 {
			t.Errorf("expected two history records, got %s", history)
		}
		if !strings.Contains(history, `"albums_created": 3`) {
			t.Errorf("expected first record in history, got %s", history)
		}
	})

	t.Run("run fails without release tabs", func(t *testing.T) {
		env := newCLIEnv(t)
		path := filepath.Join(env.dir, "empty.xlsx")
		tu.NewWorkbookBuilder(t).AddReleaseTab("Statistics").Save(path)

		out, err := env.run("sync", "run", "--file", path)
		if err == nil {
			t.Fatal("expected failed sync to return an error")
		}
		if !strings.Contains(out, "No release tabs were found") {
			t.Errorf("expected categorized message, got %s", out)
		}
	})

	t.Run("history rejects bad limit", func(t *testing.T) {
		env := newCLIEnv(t)
		if _, err := env.run("sync", "history", "--limit", "0"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("trigger through server", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/api/sync/trigger" {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"id":"run-1","status":"pending","message":"Sync started"}`))
		}))
		defer srv.Close()

		env := newCLIEnv(t)
		if out := env.mustRun("sync", "trigger", "--server", srv.URL); !strings.Contains(out, "Sync started: run-1") {
			t.Errorf("unexpected output: %s", out)
		}
	})

	t.Run("trigger conflict", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"a sync is already in progress","id":"run-0","status":"running"}`))
		}))
		defer srv.Close()

		env := newCLIEnv(t)
		_, err := env.run("sync", "trigger", "--server", srv.URL)
		if !errors.Is(err, shared.ErrSyncActive) {
			t.Fatalf("expected ErrSyncActive, got %v", err)
		}
		if !strings.Contains(err.Error(), "run-0") {
			t.Errorf("expected active run id in error, got %v", err)
		}
	})

	t.Run("remote status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"run-2","status":"running","stage":"processing",
				"stage_message":"Syncing album 4 of 10...","albums_processed":4,"total_albums":10,
				"created_at":"2025-03-01T10:00:00Z","started_at":"2025-03-01T10:00:01Z"}`))
		}))
		defer srv.Close()

		env := newCLIEnv(t)
		out := env.mustRun("sync", "status", "--remote", "--server", srv.URL, "--format", "json")
		if !strings.Contains(out, `"id": "run-2"`) || !strings.Contains(out, `"progress_percentage": 40`) {
			t.Errorf("unexpected output: %s", out)
		}
	})
}

func TestImportCommand(t *testing.T) {
	t.Run("limit", func(t *testing.T) {
		env := newCLIEnv(t)
		out := env.mustRun("import", "--file", env.workbook(), "--limit", "2")
		if !strings.Contains(out, "Created: 2") {
			t.Errorf("unexpected output: %s", out)
		}

		history := env.mustRun("sync", "history")
		if !strings.Contains(history, "No syncs recorded yet.") {
			t.Errorf("expected import to leave no sync record, got %s", history)
		}
	})

	t.Run("skip existing", func(t *testing.T) {
		env := newCLIEnv(t)
		wb := env.workbook()
		env.mustRun("import", "--file", wb)

		out := env.mustRun("import", "--file", wb, "--skip-existing")
		if !strings.Contains(out, "Created: 0  Updated: 0  Skipped: 3") {
			t.Errorf("unexpected output: %s", out)
		}
	})

	t.Run("negative limit", func(t *testing.T) {
		env := newCLIEnv(t)
		if _, err := env.run("import", "--limit", "-1"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("sync flag records a run", func(t *testing.T) {
		env := newCLIEnv(t)
		env.mustRun("import", "--file", env.workbook(), "--sync")

		if out := env.mustRun("sync", "status", "--format", "json"); !strings.Contains(out, `"status": "completed"`) {
			t.Errorf("expected a recorded sync, got %s", out)
		}
	})
}

func TestAlbumsCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("sync", "run", "--file", env.workbook())

	t.Run("list", func(t *testing.T) {
		out := env.mustRun("albums", "list", "--format", "json")
		for _, want := range []string{`"artist": "Opeth"`, `"artist": "Leprous"`, `"vocal_style": "Clean Vocals"`} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in %s", want, out)
			}
		}
	})

	t.Run("list by year", func(t *testing.T) {
		out := env.mustRun("albums", "list", "--year", "2023")
		if !strings.Contains(out, "Leprous") || strings.Contains(out, "Opeth") {
			t.Errorf("expected only 2023 releases, got %s", out)
		}
		if !strings.Contains(out, "1 albums") {
			t.Errorf("expected count line, got %s", out)
		}
	})

	t.Run("list by unknown genre", func(t *testing.T) {
		if _, err := env.run("albums", "list", "--genre", "Polka"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("cover rejects invalid id", func(t *testing.T) {
		if _, err := env.run("albums", "cover", "not-an-id"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("cover of unknown album", func(t *testing.T) {
		if _, err := env.run("albums", "cover", fmt.Sprintf("%022d", 99)); !errors.Is(err, shared.ErrAlbumNotFound) {
			t.Errorf("expected ErrAlbumNotFound, got %v", err)
		}
	})

	t.Run("open requires id", func(t *testing.T) {
		if _, err := env.run("albums", "open"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestSheetsTabs(t *testing.T) {
	env := newCLIEnv(t)
	wb := env.workbook()

	t.Run("text", func(t *testing.T) {
		out := env.mustRun("sheets", "tabs", "--file", wb, "--all")
		first := strings.Index(out, "  1. 2023")
		second := strings.Index(out, "  2. 2024 Prog-metal")
		if first < 0 || second < 0 || first > second {
			t.Errorf("expected chronological order, got:\n%s", out)
		}
		if !strings.Contains(out, "Statistics") || !strings.Contains(out, "(out of scope)") {
			t.Errorf("expected out-of-scope tab with --all, got:\n%s", out)
		}
	})

	t.Run("json hides out-of-scope tabs by default", func(t *testing.T) {
		out := env.mustRun("sheets", "tabs", "--file", wb, "--json")
		if strings.Contains(out, "Statistics") {
			t.Errorf("expected only in-scope tabs, got %s", out)
		}
		if !strings.Contains(out, `"sync_order": 1`) || !strings.Contains(out, `"year": 2023`) {
			t.Errorf("unexpected output: %s", out)
		}
	})
}
