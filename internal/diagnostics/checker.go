package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"quick-translate/internal/clipboard"
	"quick-translate/internal/domain"
	"quick-translate/internal/engine"
)

// Checker validates the translation engine, clipboard access, and required
// filesystem paths.
type Checker struct {
	dataDir            string
	lookPath           func(string) (string, error)
	lookupEnv          func(string) (string, bool)
	stat               func(string) (os.FileInfo, error)
	mkdirAll           func(string, os.FileMode) error
	createTemp         func(string, string) (*os.File, error)
	remove             func(string) error
	probe              func(context.Context, string) (string, error)
	clipboardAvailable func() bool
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(dataDir string) *Checker {
	return &Checker{
		dataDir:            dataDir,
		lookPath:           exec.LookPath,
		lookupEnv:          os.LookupEnv,
		stat:               os.Stat,
		mkdirAll:           os.MkdirAll,
		createTemp:         os.CreateTemp,
		remove:             os.Remove,
		probe:              engine.ProbeVersion,
		clipboardAvailable: clipboard.Available,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(ctx context.Context, settings domain.Settings) domain.DiagnosticReport {
	binItem, binPath := c.checkEngineBinary(settings)
	items := []domain.DiagnosticItem{
		binItem,
		c.checkEngineVersion(ctx, binPath),
		c.checkGlossary(settings.GlossaryPath),
		c.checkDataDir(c.dataDir),
		c.checkClipboard(),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkEngineBinary resolves the configured engine executable. The returned
// path is empty when the binary cannot be found.
func (c *Checker) checkEngineBinary(settings domain.Settings) (domain.DiagnosticItem, string) {
	bin := engine.ResolveBinary(settings, c.lookupEnv)
	item := domain.DiagnosticItem{
		ID:   "engine_binary",
		Name: "plamo-translate",
	}

	if strings.ContainsRune(bin, filepath.Separator) {
		info, err := c.stat(bin)
		if err != nil || info.IsDir() {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Engine binary not found: %s", bin)
			item.Hint = fmt.Sprintf("Fix the binary path in settings or unset %s.", engine.BinaryEnv)
			return item, ""
		}
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Found at %s", bin)
		return item, bin
	}

	path, err := c.lookPath(bin)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Tool not found in PATH: %s", bin)
		item.Hint = fmt.Sprintf("Install plamo-translate (pip install plamo-translate) or set %s.", engine.BinaryEnv)
		return item, ""
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item, path
}

// checkEngineVersion runs the engine once to confirm it starts.
func (c *Checker) checkEngineVersion(ctx context.Context, binPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "engine_version",
		Name: "Engine version",
	}

	if binPath == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Skipped: engine binary is unavailable."
		return item
	}

	version, err := c.probe(ctx, binPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Engine did not answer --version."
		item.Hint = "Run plamo-translate --version in a terminal to see the underlying error."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = version
	if item.Message == "" {
		item.Message = "Engine responded."
	}
	return item
}

// checkGlossary validates the optional glossary file.
func (c *Checker) checkGlossary(path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "glossary",
		Name: "Glossary",
	}

	if strings.TrimSpace(path) == "" {
		item.Status = domain.DiagnosticStatusPass
		item.Message = "No glossary configured."
		return item
	}

	info, err := c.stat(path)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if IsNotExist(err) {
			item.Message = fmt.Sprintf("Glossary file does not exist: %s", path)
		} else {
			item.Message = fmt.Sprintf("Cannot access glossary file: %s", path)
		}
		item.Hint = "Point the glossary setting to an existing file or clear it."
		return item
	}
	if info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Glossary path is a directory: %s", path)
		item.Hint = "Point the glossary setting to a file."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Glossary file found: %s", path)
	return item
}

// checkDataDir validates data directory existence and write access.
func (c *Checker) checkDataDir(dataDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "data_dir",
		Name: "Data directory",
	}

	if strings.TrimSpace(dataDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Data directory is empty."
		item.Hint = "Settings and history need a writable data directory."
		return item
	}

	if err := c.mkdirAll(dataDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create data directory: %s", dataDir)
		item.Hint = "Adjust filesystem permissions for the home directory."
		return item
	}

	tmpFile, err := c.createTemp(dataDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Data directory is not writable: %s", dataDir)
		item.Hint = "History and settings cannot be saved until this is fixed."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dataDir)
	return item
}

// checkClipboard reports whether a clipboard helper is installed.
func (c *Checker) checkClipboard() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "clipboard",
		Name: "Clipboard",
	}

	if c.clipboardAvailable != nil && !c.clipboardAvailable() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No clipboard helper available."
		item.Hint = "Install xclip, xsel, or wl-clipboard for quick translate and auto copy."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "Clipboard access available."
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	dataDir string,
	lookPath func(string) (string, error),
	lookupEnv func(string) (string, bool),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	probe func(context.Context, string) (string, error),
	clipboardAvailable func() bool,
) *Checker {
	return &Checker{
		dataDir:            dataDir,
		lookPath:           lookPath,
		lookupEnv:          lookupEnv,
		stat:               stat,
		mkdirAll:           mkdirAll,
		createTemp:         createTemp,
		remove:             remove,
		probe:              probe,
		clipboardAvailable: clipboardAvailable,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
