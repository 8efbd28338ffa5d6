package devserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvdown/internal/backend"
	"mvdown/internal/devserver"
	"mvdown/internal/fetch"
	"mvdown/internal/orchestrator"
	"mvdown/internal/progress"
	"mvdown/internal/services"
	"mvdown/internal/testsupport"
	"mvdown/internal/transport"
)

func newServer(t *testing.T) (*httptest.Server, *backend.Client, string) {
	t.Helper()
	dir := t.TempDir()
	srv, err := devserver.New(devserver.Options{Dir: dir})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	client, err := backend.New(backend.Options{BaseURL: ts.URL})
	require.NoError(t, err)
	return ts, client, dir
}

func runJob(t *testing.T, client *backend.Client, kind, mediaURL, formatID string) []progress.Event {
	t.Helper()
	tr, err := transport.New(kind, client.BaseURL())
	require.NoError(t, err)
	o := orchestrator.New(client, tr)
	t.Cleanup(o.Cancel)
	sub := o.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, o.Submit(ctx, mediaURL, formatID))

	var events []progress.Event
	for {
		u, err := sub.Next(ctx)
		require.NoError(t, err)
		events = append(events, u.Event)
		if progress.IsTerminal(u.Event) {
			return events
		}
	}
}

func TestHealth(t *testing.T) {
	_, client, dir := newServer(t)
	testsupport.WriteFile(t, filepath.Join(dir, "clip.mp4"), 2048)

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, dir, health.DownloadDir)
	assert.Equal(t, 1, health.FilesCount)
	assert.Zero(t, health.ActiveDownloads)
}

func TestFormats(t *testing.T) {
	_, client, _ := newServer(t)

	formats, err := client.Formats(context.Background(), "https://media.example/watch?v=1")
	require.NoError(t, err)
	assert.NotEmpty(t, formats.Title)
	assert.NotEmpty(t, formats.VideoFormats)
	assert.NotEmpty(t, formats.AudioFormats)

	_, err = client.Formats(context.Background(), "https://media.example/fail")
	require.Error(t, err)
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
}

func TestSubmitRejectsInvalidURL(t *testing.T) {
	_, client, _ := newServer(t)

	_, err := client.SubmitDownload(context.Background(), backend.DownloadRequest{URL: "not a url", FormatID: "22"})
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Invalid URL", apiErr.Detail())
}

func TestDownloadCompletesOverEachTransport(t *testing.T) {
	for _, kind := range []string{"sse", "websocket", "auto"} {
		t.Run(kind, func(t *testing.T) {
			_, client, dir := newServer(t)

			events := runJob(t, client, kind, "https://media.example/watch?v=ok", "best-audio")
			require.GreaterOrEqual(t, len(events), 3)
			assert.Equal(t, progress.Connected{}, events[0])

			last, ok := events[len(events)-1].(progress.Completed)
			require.True(t, ok, "last event %#v", events[len(events)-1])
			assert.Equal(t, "mvdown sample track", last.Title)
			assert.FileExists(t, filepath.Join(dir, last.Filename))

			var sawFull bool
			for _, ev := range events {
				if p, ok := ev.(progress.Progress); ok && p.HasPercent && p.Percent == 100 {
					sawFull = true
				}
			}
			assert.True(t, sawFull)
		})
	}
}

func TestDownloadFailure(t *testing.T) {
	_, client, _ := newServer(t)

	events := runJob(t, client, "sse", "https://media.example/fail", "22")
	failed, ok := events[len(events)-1].(progress.Failed)
	require.True(t, ok)
	assert.Contains(t, failed.Message, "Simulated failure")
}

func TestDroppedStreamEndsClosed(t *testing.T) {
	for _, kind := range []string{"sse", "websocket"} {
		t.Run(kind, func(t *testing.T) {
			_, client, _ := newServer(t)

			events := runJob(t, client, kind, "https://media.example/drop", "22")
			_, ok := events[len(events)-1].(progress.Closed)
			assert.True(t, ok, "last event %#v", events[len(events)-1])
		})
	}
}

func TestUnknownProgressStream(t *testing.T) {
	ts, _, _ := newServer(t)

	resp, err := http.Get(ts.URL + "/api/progress/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFilesListDeleteAndFetch(t *testing.T) {
	_, client, dir := newServer(t)
	testsupport.WriteFile(t, filepath.Join(dir, "b clip.mp4"), 4096)
	testsupport.WriteFile(t, filepath.Join(dir, "a.mp3"), 1024)
	testsupport.WriteFile(t, filepath.Join(dir, ".partial"), 10)
	ctx := context.Background()

	files, err := client.Files(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.mp3", files[0].Name)
	assert.Equal(t, "audio", files[0].Type)
	assert.Equal(t, "b clip.mp4", files[1].Name)
	assert.Equal(t, int64(4096), files[1].Size)

	out := t.TempDir()
	res, err := fetch.Fetch(ctx, client, "b clip.mp4", fetch.Options{Dir: out})
	require.NoError(t, err)
	assert.Equal(t, int64(4096), res.Bytes)

	deleted, err := client.DeleteFile(ctx, "b clip.mp4")
	require.NoError(t, err)
	assert.True(t, deleted.Success)
	assert.Equal(t, int64(4096), deleted.FreedBytes)
	assert.NoFileExists(t, filepath.Join(dir, "b clip.mp4"))

	_, err = client.DeleteFile(ctx, "b clip.mp4")
	assert.ErrorIs(t, err, services.ErrNotFound)

	all, err := client.DeleteAllFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, all.DeletedCount)
	_, err = os.Stat(filepath.Join(dir, ".partial"))
	assert.NoError(t, err)
}
