package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"quick-translate/internal/config"
	"quick-translate/internal/domain"
)

const installCommandTimeout = 15 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, errors.New("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, errors.New("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	settingsChanged := false
	var fixErr error

	switch id {
	case "engine_binary", "engine_version":
		settings, settingsChanged, fixErr = installOrFixEngine(settings, newInstaller())
	case "glossary":
		settings, settingsChanged = clearMissingGlossary(settings)
	case "data_dir":
		fixErr = fixDataDir(a.dataDir)
	case "clipboard":
		fixErr = installClipboardHelper(newInstaller(), os.Getenv("WAYLAND_DISPLAY") != "")
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(a.Overrides.Apply(settings))
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnosticsFromSettings(a.Overrides.Apply(settings))
	if fixErr != nil {
		a.log.Warn().Err(fixErr).Str("item", id).Msg("diagnostic fix failed")
		return report, fixErr
	}
	a.log.Info().Str("item", id).Msg("diagnostic fixed")
	return report, nil
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	var report domain.DiagnosticReport
	if a.checker != nil {
		report = a.checker.Run(context.Background(), settings)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = settings
	if a.checker != nil {
		a.diagnostics = report
	}
	return a.diagnostics
}

// ensureLocalBinOnPATH prepends the per-user bin directory that pipx and uv
// install into, so a freshly installed engine resolves without a new shell.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	entries := filepath.SplitList(current)
	for _, entry := range entries {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(homeDir string) string {
	return filepath.Join(homeDir, ".local", "bin")
}

// installOrFixEngine drops a stale binary override and installs
// plamo-translate when it is still missing from PATH.
func installOrFixEngine(settings domain.Settings, in installer) (domain.Settings, bool, error) {
	changed := false
	if bin := settings.Plamo.BinPath; bin != "" {
		if info, err := os.Stat(bin); err == nil && !info.IsDir() {
			return settings, false, nil
		}
		settings.Plamo.BinPath = ""
		changed = true
	}

	if err := in.requireOnPath(config.DefaultEngineBinary); err == nil {
		return settings, changed, nil
	}

	if err := in.firstSuccessful(engineInstallOptions(in.goos)); err != nil {
		return settings, changed, fmt.Errorf("install plamo-translate: %w", err)
	}
	if err := in.requireOnPath(config.DefaultEngineBinary); err != nil {
		return settings, changed, fmt.Errorf("verify plamo-translate on PATH: %w", err)
	}
	return settings, changed, nil
}

func engineInstallOptions(goos string) []installOption {
	pip := "pip3"
	if goos == "windows" {
		pip = "pip"
	}
	return []installOption{
		{
			manager: "pipx",
			commands: [][]string{
				{"pipx", "install", "plamo-translate"},
			},
		},
		{
			manager: "uv",
			commands: [][]string{
				{"uv", "tool", "install", "plamo-translate"},
			},
		},
		{
			manager: pip,
			commands: [][]string{
				{pip, "install", "--user", "plamo-translate"},
			},
		},
	}
}

// clearMissingGlossary removes a glossary path that no longer points at a file.
func clearMissingGlossary(settings domain.Settings) (domain.Settings, bool) {
	if settings.GlossaryPath == "" {
		return settings, false
	}
	if info, err := os.Stat(settings.GlossaryPath); err == nil && !info.IsDir() {
		return settings, false
	}
	settings.GlossaryPath = ""
	return settings, true
}

func fixDataDir(dataDir string) error {
	if strings.TrimSpace(dataDir) == "" {
		dataDir = config.DataDir()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", dataDir, err)
	}
	return nil
}

// installClipboardHelper installs xclip, or wl-clipboard under Wayland.
func installClipboardHelper(in installer, wayland bool) error {
	if in.goos != "linux" {
		return fmt.Errorf("clipboard access is built into %s; check app permissions", in.goos)
	}

	pkg, tool := "xclip", "xclip"
	if wayland {
		pkg, tool = "wl-clipboard", "wl-copy"
	}

	options := []installOption{
		{
			manager: "apt-get",
			commands: [][]string{
				{"apt-get", "update"},
				{"apt-get", "install", "-y", pkg},
			},
		},
		{
			manager: "dnf",
			commands: [][]string{
				{"dnf", "install", "-y", pkg},
			},
		},
		{
			manager: "pacman",
			commands: [][]string{
				{"pacman", "-Sy", "--noconfirm", pkg},
			},
		},
		{
			manager: "zypper",
			commands: [][]string{
				{"zypper", "install", "-y", pkg},
			},
		},
	}

	if err := in.firstSuccessful(options); err != nil {
		return fmt.Errorf("install %s: %w", pkg, err)
	}
	if err := in.requireOnPath(tool); err != nil {
		return fmt.Errorf("verify %s on PATH: %w", tool, err)
	}
	return nil
}

// installer runs package manager commands. On Linux, system package managers
// are retried through pkexec and then non-interactive sudo.
type installer struct {
	goos     string
	timeout  time.Duration
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func newInstaller() installer {
	return installer{
		goos:     goruntime.GOOS,
		timeout:  installCommandTimeout,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// firstSuccessful tries each option whose manager is installed, in order,
// and stops at the first one whose commands all succeed.
func (in installer) firstSuccessful(options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", in.goos)
	}

	var failures []string
	tried := false
	for _, option := range options {
		if !in.available(option.manager) {
			continue
		}
		tried = true
		err := in.runAll(option.commands)
		if err == nil {
			return nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if !tried {
		return fmt.Errorf("no supported package manager found for %s", in.goos)
	}
	return errors.New(strings.Join(failures, " | "))
}

func (in installer) runAll(commands [][]string) error {
	for _, command := range commands {
		if err := in.runElevated(command); err != nil {
			return err
		}
	}
	return nil
}

func (in installer) runElevated(command []string) error {
	if len(command) == 0 {
		return errors.New("empty command")
	}

	attempts := [][]string{command}
	if in.goos == "linux" && requiresElevation(command[0]) {
		if in.available("pkexec") {
			attempts = append(attempts, append([]string{"pkexec"}, command...))
		}
		if in.available("sudo") {
			attempts = append(attempts, append([]string{"sudo", "-n"}, command...))
		}
	}

	var failures []string
	for _, attempt := range attempts {
		err := in.runOne(attempt[0], attempt[1:]...)
		if err == nil {
			return nil
		}
		failures = append(failures, err.Error())
	}
	return errors.New(strings.Join(failures, " | "))
}

func (in installer) runOne(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), in.timeout)
	defer cancel()

	output, err := in.run(ctx, name, args...)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), in.timeout)
	}

	detail := strings.TrimSpace(string(output))
	if len(detail) > 500 {
		detail = detail[:500] + "..."
	}
	if detail == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, detail)
}

func (in installer) available(name string) bool {
	_, err := in.lookPath(name)
	return err == nil
}

func (in installer) requireOnPath(names ...string) error {
	var missing []string
	for _, name := range names {
		if !in.available(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

func formatCommand(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}
