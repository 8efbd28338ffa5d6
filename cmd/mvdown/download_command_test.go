package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mvdown/internal/joblock"
)

func TestDownloadCompletes(t *testing.T) {
	for _, kind := range []string{"sse", "websocket"} {
		t.Run(kind, func(t *testing.T) {
			env := setupCLITestEnv(t)

			out, _, err := runCLI(t, []string{"download", "https://media.example/watch?v=1", "--format", "best-audio", "--transport", kind}, env.configPath)
			if err != nil {
				t.Fatalf("download: %v\n%s", err, out)
			}
			requireContains(t, out, "Download Complete!")
			requireContains(t, out, "Save to device: mvdown fetch")

			last, err := joblock.LastJob(env.cfg.Paths.StateDir)
			if err != nil || last == "" {
				t.Fatalf("expected recorded job id, got %q (%v)", last, err)
			}
		})
	}
}

func TestDownloadWithFetchSavesFile(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"download", "https://media.example/watch?v=2", "-f", "best-audio", "--fetch"}, env.configPath)
	if err != nil {
		t.Fatalf("download --fetch: %v\n%s", err, out)
	}
	requireContains(t, out, "Saved ")
	requireContains(t, out, "mvdown devserver - mvdown sample track")

	entries, err := os.ReadDir(env.cfg.Paths.DownloadDir)
	if err != nil {
		t.Fatalf("read download dir: %v", err)
	}
	if len(entries) != 1 || filepath.Ext(entries[0].Name()) != ".mp3" {
		t.Fatalf("expected one mp3 in download dir, got %v", entries)
	}
}

func TestDownloadFailureExitCode(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"download", "https://media.example/fail", "--format", "22"}, env.configPath)
	if err == nil {
		t.Fatal("expected failure")
	}
	requireContains(t, out, "Download Failed")
	requireContains(t, out, "Simulated failure")
	if code := exitCode(err); code != exitFailed {
		t.Fatalf("exit code = %d, want %d", code, exitFailed)
	}
}

func TestDownloadDroppedStreamIsAmbiguous(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"download", "https://media.example/drop", "--format", "22"}, env.configPath)
	if err == nil {
		t.Fatal("expected an ambiguous close")
	}
	requireContains(t, out, "outcome of the download is unknown")
	requireContains(t, out, "Re-attach with: mvdown watch")
	if strings.Contains(out, "Download Complete") {
		t.Fatalf("closed stream must not report success:\n%s", out)
	}
	if code := exitCode(err); code != exitClosed {
		t.Fatalf("exit code = %d, want %d", code, exitClosed)
	}
}

func TestDownloadRejectedSubmission(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"download", "ftp://media.example/file", "--format", "22"}, env.configPath)
	if err == nil {
		t.Fatal("expected submission failure")
	}
	requireContains(t, out, "Failed: 400 - Invalid URL")
}

func TestDownloadRequiresFormat(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"download", "https://media.example/watch?v=1"}, env.configPath); err == nil {
		t.Fatal("expected missing --format to fail")
	}
}

func TestDownloadBusyLock(t *testing.T) {
	env := setupCLITestEnv(t)

	lock := joblock.New(env.cfg.Paths.StateDir)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lock.Release()

	_, _, err := runCLI(t, []string{"download", "https://media.example/watch?v=1", "--format", "22"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "already streaming") {
		t.Fatalf("expected busy lock error, got %v", err)
	}
}

func TestWatchReattachesToLastJob(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"download", "https://media.example/watch?v=3", "--format", "22"}, env.configPath); err != nil {
		t.Fatalf("download: %v", err)
	}
	out, _, err := runCLI(t, []string{"watch"}, env.configPath)
	if err != nil {
		t.Fatalf("watch: %v\n%s", err, out)
	}
	requireContains(t, out, "Download Complete!")
}

func TestWatchWithoutRecordedJob(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"watch"}, env.configPath)
	if err == nil {
		t.Fatal("expected error without a recorded job")
	}
	if code := exitCode(err); code != exitInvalid {
		t.Fatalf("exit code = %d, want %d", code, exitInvalid)
	}
}
