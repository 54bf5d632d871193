package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/progdb/internal/services"
	"github.com/desertthunder/progdb/internal/shared"
	"github.com/desertthunder/progdb/internal/sheets"
	tu "github.com/desertthunder/progdb/internal/testing"
)

type stubLookup struct{}

func (stubLookup) Name() string { return "stub" }

func (stubLookup) LookupAlbum(ctx context.Context, id string) (*services.AlbumMetadata, error) {
	return nil, shared.ErrAlbumNotFound
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			lookup := stubLookup{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Lookup:     lookup,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.lookup != lookup {
				t.Error("expected lookup to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/test/path/config.toml"})

			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("writePlainln surrounds text with newlines", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlainln("Next %d", 1); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "\nNext 1\n" {
				t.Errorf("expected newline-wrapped text, got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := map[string]bool{"setup": false, "sync": false, "import": false, "serve": false, "albums": false, "sheets": false}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			if _, ok := want[cmd.Name]; !ok {
				t.Errorf("unexpected command %q", cmd.Name)
			}
			want[cmd.Name] = true
		}
		for name, seen := range want {
			if !seen {
				t.Errorf("expected command %q to be registered", name)
			}
		}
	})

	t.Run("source", func(t *testing.T) {
		t.Run("file override", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "releases.xlsx")
			tu.NewWorkbookBuilder(t).AddReleaseTab("2024").Save(path)

			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard)})
			src, err := runner.source(context.Background(), path)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if fs, ok := src.(sheets.FileSource); !ok || fs.Path != path {
				t.Errorf("expected file source for %s, got %#v", path, src)
			}
		})

		t.Run("missing file", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard)})
			_, err := runner.source(context.Background(), filepath.Join(t.TempDir(), "nope.xlsx"))
			if !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})

		t.Run("configured export", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard)})
			src, err := runner.source(context.Background(), "")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if _, ok := src.(*sheets.ExportSource); !ok {
				t.Errorf("expected export source, got %T", src)
			}
		})

		t.Run("export without URL", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Source.ExportURL = ""
			runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(io.Discard)})

			if _, err := runner.source(context.Background(), ""); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("unknown kind", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Source.Kind = "csv"
			runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(io.Discard)})

			if _, err := runner.source(context.Background(), ""); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})

	t.Run("metadataService", func(t *testing.T) {
		t.Run("placeholder credentials disable lookups", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			svc, err := runner.metadataService()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if svc != nil {
				t.Errorf("expected no service, got %T", svc)
			}
		})

		t.Run("configured credentials build Spotify", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Credentials.Spotify.ClientID = "abc"
			config.Credentials.Spotify.ClientSecret = "def"
			runner := NewRunner(RunnerOpts{Config: config})

			svc, err := runner.metadataService()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if _, ok := svc.(*services.SpotifyService); !ok {
				t.Errorf("expected Spotify service, got %T", svc)
			}
		})

		t.Run("override wins", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Lookup: stubLookup{}})

			svc, _ := runner.metadataService()
			if _, ok := svc.(stubLookup); !ok {
				t.Errorf("expected override, got %T", svc)
			}
		})
	})

	t.Run("importer", func(t *testing.T) {
		db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: ":memory:"})
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		t.Run("eager mode needs credentials", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Sync.MetadataMode = shared.MetadataEager
			runner := NewRunner(RunnerOpts{Config: config})

			if _, err := runner.importer(db); !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("unknown mode", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Sync.MetadataMode = "lazy"
			runner := NewRunner(RunnerOpts{Config: config})

			if _, err := runner.importer(db); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("eager mode with lookup", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Sync.MetadataMode = shared.MetadataEager
			runner := NewRunner(RunnerOpts{Config: config, Lookup: stubLookup{}})

			imp, err := runner.importer(db)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if imp.Mode() != "eager" {
				t.Errorf("expected eager importer, got %s", imp.Mode())
			}
		})
	})

	t.Run("configured", func(t *testing.T) {
		tests := []struct {
			value string
			want  bool
		}{
			{"", false},
			{"your_spotify_client_id", false},
			{"3f2a9c", true},
		}
		for _, tt := range tests {
			if got := configured(tt.value); got != tt.want {
				t.Errorf("configured(%q) = %v, want %v", tt.value, got, tt.want)
			}
		}
	})
}
