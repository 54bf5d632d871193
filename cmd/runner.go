package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/progdb/internal/catalog"
	"github.com/desertthunder/progdb/internal/services"
	"github.com/desertthunder/progdb/internal/shared"
	"github.com/desertthunder/progdb/internal/sheets"
	"github.com/desertthunder/progdb/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	lookup     services.MetadataService
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	// Lookup overrides the metadata service built from the Spotify credentials.
	Lookup services.MetadataService
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		lookup:     opts.Lookup,
	}
}

// SetLogger replaces the logger used by subsequent commands.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, syncCommand, importCommand, serveCommand, albumsCommand, sheetsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig is the root Before hook: it reads --config (when the file exists) and applies --verbose.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	path := cmd.String("config")
	if path == "" {
		return ctx, nil
	}
	config, err := shared.LoadOrDefault(path)
	if err != nil {
		return ctx, err
	}
	r.config = config
	r.configPath = path
	r.logger.Debug("configuration loaded", "path", path)
	return ctx, nil
}

// openDatabase opens the configured database and applies pending migrations.
func (r *Runner) openDatabase() (*sql.DB, error) {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", r.config.Database.Path, err)
	}
	return db, nil
}

// source returns the workbook source: a local file when path is set, otherwise the configured source.
func (r *Runner) source(ctx context.Context, path string) (sheets.Source, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: workbook file: %v", shared.ErrInvalidArgument, err)
		}
		return sheets.FileSource{Path: path}, nil
	}

	src := r.config.Source
	switch src.Kind {
	case shared.SourceXLSX:
		if src.ExportURL == "" {
			return nil, fmt.Errorf("%w: source.export_url is required for kind %q", shared.ErrInvalidConfig, src.Kind)
		}
		return sheets.NewExportSource(src.ExportURL, src.Timeout(), src.RetryMax, r.logger), nil
	case shared.SourceSheets:
		return sheets.NewSheetsSource(ctx, src.SpreadsheetID, r.config.Credentials.Google.CredentialsFile)
	default:
		return nil, fmt.Errorf("%w: unknown source.kind %q", shared.ErrInvalidConfig, src.Kind)
	}
}

// metadataService returns the Spotify lookup service, or nil when no credentials are configured.
func (r *Runner) metadataService() (services.MetadataService, error) {
	if r.lookup != nil {
		return r.lookup, nil
	}

	creds := r.config.Credentials.Spotify
	if !configured(creds.ClientID) || !configured(creds.ClientSecret) {
		return nil, nil
	}

	svc, err := services.NewSpotifyService(map[string]string{
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
	}, services.WithRateLimit(r.config.Sync.LookupRate, 1), services.WithSpotifyLogger(r.logger))
	if err != nil {
		return nil, err
	}
	r.lookup = svc
	return svc, nil
}

// importer builds the album importer for the configured metadata mode.
func (r *Runner) importer(db *sql.DB) (*catalog.Importer, error) {
	mode, err := catalog.ParseMetadataMode(r.config.Sync.MetadataMode)
	if err != nil {
		return nil, err
	}
	if mode == catalog.ModeJIT {
		return catalog.NewImporter(db, r.logger), nil
	}

	lookup, err := r.metadataService()
	if err != nil {
		return nil, err
	}
	if lookup == nil {
		return nil, fmt.Errorf("%w: eager metadata mode needs Spotify credentials", shared.ErrMissingCredentials)
	}
	return catalog.NewImporter(db, r.logger, catalog.WithEagerMetadata(lookup)), nil
}

// orchestrator wires a sync orchestrator over db and source.
func (r *Runner) orchestrator(db *sql.DB, source sheets.Source) (*tasks.Orchestrator, error) {
	imp, err := r.importer(db)
	if err != nil {
		return nil, err
	}
	return tasks.NewOrchestrator(db, source, r.logger,
		tasks.WithImporter(imp),
		tasks.WithProgressInterval(r.config.Sync.ProgressInterval),
	), nil
}

// api returns a client for the configured progdb server, or for serverURL when set.
func (r *Runner) api(serverURL string) *services.APIService {
	if serverURL == "" {
		serverURL = "http://" + r.config.Server.Addr()
	}
	return services.NewAPIService(strings.TrimRight(serverURL, "/"), r.httpClient)
}

// configured reports whether a credential was filled in rather than left as the example placeholder.
func configured(v string) bool {
	return v != "" && !strings.HasPrefix(v, "your_")
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
