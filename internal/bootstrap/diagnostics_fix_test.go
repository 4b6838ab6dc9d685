package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quick-translate/internal/domain"
)

// scriptedInstaller fakes PATH lookups and command runs for installer tests.
type scriptedInstaller struct {
	onPath map[string]bool
	fail   map[string]bool
	ran    []string
}

func (s *scriptedInstaller) installer(goos string) installer {
	return installer{
		goos:    goos,
		timeout: time.Second,
		lookPath: func(name string) (string, error) {
			if s.onPath[name] {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("not found")
		},
		run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			command := formatCommand(name, args)
			s.ran = append(s.ran, command)
			if s.fail[command] {
				return []byte("permission denied"), errors.New("exit status 1")
			}
			return nil, nil
		},
	}
}

// TestInstallOrFixEngineKeepsValidBinPath ensures an existing override is left alone.
func TestInstallOrFixEngineKeepsValidBinPath(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "plamo-translate")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write bin: %v", err)
	}

	fake := &scriptedInstaller{}
	settings := domain.Settings{Plamo: domain.PlamoSettings{BinPath: bin}}
	fixed, changed, err := installOrFixEngine(settings, fake.installer("linux"))
	if err != nil {
		t.Fatalf("fix engine: %v", err)
	}
	if changed {
		t.Fatal("expected settings to remain unchanged")
	}
	if fixed.Plamo.BinPath != bin {
		t.Fatalf("BinPath = %s, want %s", fixed.Plamo.BinPath, bin)
	}
	if len(fake.ran) != 0 {
		t.Fatalf("ran %v, want no commands", fake.ran)
	}
}

// TestInstallOrFixEngineClearsStaleBinPath ensures a missing override falls back to PATH.
func TestInstallOrFixEngineClearsStaleBinPath(t *testing.T) {
	fake := &scriptedInstaller{onPath: map[string]bool{"plamo-translate": true}}

	settings := domain.Settings{Plamo: domain.PlamoSettings{BinPath: filepath.Join(t.TempDir(), "missing")}}
	fixed, changed, err := installOrFixEngine(settings, fake.installer("linux"))
	if err != nil {
		t.Fatalf("fix engine: %v", err)
	}
	if !changed {
		t.Fatal("expected settings to change")
	}
	if fixed.Plamo.BinPath != "" {
		t.Fatalf("BinPath = %q, want empty", fixed.Plamo.BinPath)
	}
	if len(fake.ran) != 0 {
		t.Fatalf("ran %v, want no commands", fake.ran)
	}
}

// TestInstallOrFixEngineFallsBackToNextManager checks a failed pipx install moves on to uv.
func TestInstallOrFixEngineFallsBackToNextManager(t *testing.T) {
	fake := &scriptedInstaller{
		onPath: map[string]bool{"pipx": true, "uv": true},
		fail:   map[string]bool{"pipx install plamo-translate": true},
	}
	in := fake.installer("darwin")
	in.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		command := formatCommand(name, args)
		fake.ran = append(fake.ran, command)
		if fake.fail[command] {
			return []byte("boom"), errors.New("exit status 1")
		}
		if name == "uv" {
			fake.onPath["plamo-translate"] = true
		}
		return nil, nil
	}

	if _, _, err := installOrFixEngine(domain.Settings{}, in); err != nil {
		t.Fatalf("fix engine: %v", err)
	}
	want := []string{"pipx install plamo-translate", "uv tool install plamo-translate"}
	if strings.Join(fake.ran, ";") != strings.Join(want, ";") {
		t.Fatalf("ran %v, want %v", fake.ran, want)
	}
}

// TestInstallOrFixEngineReportsMissingAfterInstall ensures a silent install is not trusted.
func TestInstallOrFixEngineReportsMissingAfterInstall(t *testing.T) {
	fake := &scriptedInstaller{onPath: map[string]bool{"pipx": true}}

	_, _, err := installOrFixEngine(domain.Settings{}, fake.installer("linux"))
	if err == nil || !strings.Contains(err.Error(), "verify plamo-translate on PATH") {
		t.Fatalf("err = %v, want PATH verification failure", err)
	}
}

// TestInstallClipboardHelperElevates checks system package managers retry through sudo.
func TestInstallClipboardHelperElevates(t *testing.T) {
	fake := &scriptedInstaller{
		onPath: map[string]bool{"apt-get": true, "sudo": true, "xclip": true},
		fail:   map[string]bool{"apt-get update": true},
	}

	if err := installClipboardHelper(fake.installer("linux"), false); err != nil {
		t.Fatalf("install helper: %v", err)
	}
	want := []string{"apt-get update", "sudo -n apt-get update", "apt-get install -y xclip"}
	if strings.Join(fake.ran, ";") != strings.Join(want, ";") {
		t.Fatalf("ran %v, want %v", fake.ran, want)
	}
}

// TestInstallClipboardHelperWayland picks wl-clipboard under Wayland.
func TestInstallClipboardHelperWayland(t *testing.T) {
	fake := &scriptedInstaller{onPath: map[string]bool{"dnf": true, "wl-copy": true}}

	if err := installClipboardHelper(fake.installer("linux"), true); err != nil {
		t.Fatalf("install helper: %v", err)
	}
	if len(fake.ran) != 1 || fake.ran[0] != "dnf install -y wl-clipboard" {
		t.Fatalf("ran %v, want dnf install of wl-clipboard", fake.ran)
	}
}

// TestInstallClipboardHelperNonLinux reports that no install is possible.
func TestInstallClipboardHelperNonLinux(t *testing.T) {
	fake := &scriptedInstaller{}
	if err := installClipboardHelper(fake.installer("darwin"), false); err == nil {
		t.Fatal("expected error on darwin")
	}
}

// TestClearMissingGlossary ensures only dangling glossary paths are cleared.
func TestClearMissingGlossary(t *testing.T) {
	root := t.TempDir()
	glossary := filepath.Join(root, "glossary.csv")
	if err := os.WriteFile(glossary, []byte("API,API"), 0o644); err != nil {
		t.Fatalf("write glossary: %v", err)
	}

	if _, changed := clearMissingGlossary(domain.Settings{GlossaryPath: glossary}); changed {
		t.Fatal("existing glossary should be kept")
	}

	fixed, changed := clearMissingGlossary(domain.Settings{GlossaryPath: filepath.Join(root, "gone.csv")})
	if !changed || fixed.GlossaryPath != "" {
		t.Fatalf("missing glossary not cleared: changed=%v path=%q", changed, fixed.GlossaryPath)
	}
}

// TestFixDataDirCreatesDirectory ensures data dir fix creates missing directories.
func TestFixDataDirCreatesDirectory(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", ".quick-translate")
	if err := fixDataDir(dataDir); err != nil {
		t.Fatalf("fix data dir: %v", err)
	}
	if _, err := os.Stat(dataDir); err != nil {
		t.Fatalf("stat data dir: %v", err)
	}
}

// TestEnsureLocalBinOnPATHPrependsOnce validates PATH is only extended once.
func TestEnsureLocalBinOnPATHPrependsOnce(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PATH", "/usr/bin")

	if err := ensureLocalBinOnPATH(home); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := ensureLocalBinOnPATH(home); err != nil {
		t.Fatalf("second call: %v", err)
	}

	binDir := localBinDir(home)
	path := os.Getenv("PATH")
	if !strings.HasPrefix(path, binDir+string(os.PathListSeparator)) {
		t.Fatalf("PATH = %s, want prefix %s", path, binDir)
	}
	if strings.Count(path, binDir) != 1 {
		t.Fatalf("PATH = %s, want one %s entry", path, binDir)
	}
}

// TestFirstSuccessfulWithoutManagers reports a missing package manager.
func TestFirstSuccessfulWithoutManagers(t *testing.T) {
	fake := &scriptedInstaller{}

	err := fake.installer("linux").firstSuccessful(engineInstallOptions("linux"))
	if err == nil || !strings.Contains(err.Error(), "no supported package manager") {
		t.Fatalf("err = %v, want missing package manager", err)
	}
}

// TestFormatCommand validates command rendering used in error messages.
func TestFormatCommand(t *testing.T) {
	got := formatCommand("uv", []string{"tool", "install", "plamo-translate"})
	if got != "uv tool install plamo-translate" {
		t.Fatalf("formatCommand = %q", got)
	}
}
