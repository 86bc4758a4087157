package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
)

// DefaultTimeout bounds a single analyzer run
const DefaultTimeout = 180 * time.Second

// ErrNotProvisioned is returned by Run before a successful Provision
var ErrNotProvisioned = errors.New("elite insights is not installed")

// Config describes where the analyzer lives and where it writes reports
type Config struct {
	// ExecutablePath is the CLI binary or its installation directory.
	// Empty means look it up in PATH.
	ExecutablePath string
	// SettingsPath is the settings.conf handed to the CLI with -c
	SettingsPath string
	// OutputDir receives the generated html and json reports
	OutputDir string
	Timeout   time.Duration
}

// EliteInsights runs the Elite Insights CLI on combat logs
type EliteInsights struct {
	cfg        Config
	executable string
	ready      atomic.Bool
}

// New creates an analyzer. Provision must succeed before Run is usable.
func New(cfg Config) *EliteInsights {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SettingsPath == "" && cfg.OutputDir != "" {
		cfg.SettingsPath = filepath.Join(cfg.OutputDir, "settings.conf")
	}
	return &EliteInsights{cfg: cfg}
}

// Provision locates the executable, creates the output directory and writes
// the settings file the CLI is run with.
func (e *EliteInsights) Provision() error {
	executable, err := Find(e.cfg.ExecutablePath)
	if err != nil {
		return err
	}
	if e.cfg.OutputDir == "" {
		return fmt.Errorf("analyzer output directory is not set")
	}

	if err := os.MkdirAll(e.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create analyzer output directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(e.cfg.SettingsPath), 0755); err != nil {
		return fmt.Errorf("failed to create analyzer settings directory: %w", err)
	}
	if err := os.WriteFile(e.cfg.SettingsPath, []byte(settingsFile(e.cfg.OutputDir)), 0644); err != nil {
		return fmt.Errorf("failed to write analyzer settings: %w", err)
	}

	e.executable = executable
	e.ready.Store(true)

	log.Info().
		Str("executable", executable).
		Str("output_dir", e.cfg.OutputDir).
		Msg("Elite Insights provisioned")
	return nil
}

func settingsFile(outputDir string) string {
	lines := []string{
		"SaveOutJSON=true",
		"IndentJSON=false",
		"SaveOutHTML=true",
		"SaveOutTrace=false",
		"SaveAtOut=false",
		"ParseCombatReplay=true",
		"SingleThreaded=false",
		"OutLocation=" + outputDir,
	}
	return strings.Join(lines, "\n") + "\n"
}

// Run parses the log at path. Its deadline is the analyzer timeout, independent
// of any deadline on ctx.
func (e *EliteInsights) Run(ctx context.Context, path string) (domain.ParseResult, error) {
	if !e.ready.Load() {
		return domain.ParseResult{}, ErrNotProvisioned
	}
	if _, err := os.Stat(path); err != nil {
		return domain.ParseResult{}, fmt.Errorf("evtc file does not exist: %s", path)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.executable, "-c", e.cfg.SettingsPath, path)
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	raw, runErr := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ParseResult{}, fmt.Errorf("elite insights timed out after %s: %w", e.cfg.Timeout, ctx.Err())
	}

	out := parseOutput(string(raw))
	log.Debug().
		Str("path", path).
		Dur("elapsed", time.Since(start)).
		Bool("success", out.Success).
		Str("json", out.JSONPath).
		Msg("Elite Insights finished")

	if !out.Success {
		switch {
		case out.Failure != "":
			return domain.ParseResult{}, fmt.Errorf("parsing failed: %s", out.Failure)
		case runErr != nil:
			return domain.ParseResult{}, fmt.Errorf("elite insights failed: %w", runErr)
		default:
			return domain.ParseResult{}, ErrNoReport
		}
	}

	for _, artifact := range []string{out.JSONPath, out.HTMLPath} {
		if artifact == "" {
			return domain.ParseResult{}, ErrNoReport
		}
		if _, err := os.Stat(artifact); err != nil {
			return domain.ParseResult{}, fmt.Errorf("report file missing: %w", err)
		}
	}

	encounter, err := readEncounter(out.JSONPath)
	if err != nil {
		return domain.ParseResult{}, err
	}

	return domain.ParseResult{
		HTMLPath:  out.HTMLPath,
		JSONPath:  out.JSONPath,
		Encounter: encounter,
	}, nil
}
