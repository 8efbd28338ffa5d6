package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"

	"mvdown/internal/logging"
	"mvdown/internal/preflight"
	"mvdown/internal/services"
)

// Source streams server files. *backend.Client implements it.
type Source interface {
	FileURL(name string) string
	OpenFile(ctx context.Context, fileURL string) (io.ReadCloser, int64, error)
}

// Options controls a fetch.
type Options struct {
	Dir string
	// Overwrite replaces an existing file instead of picking a free name.
	Overwrite bool
	// Progress receives a byte progress bar when set.
	Progress io.Writer
	Logger   *slog.Logger
}

// Result describes a saved file.
type Result struct {
	Path     string
	Bytes    int64
	Metadata *Metadata
}

// Fetch downloads the server file called name into opts.Dir.
func Fetch(ctx context.Context, src Source, name string, opts Options) (Result, error) {
	logger := logging.NewComponentLogger(opts.Logger, "fetch")
	base, err := cleanName(name)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "fetch", "create download dir", opts.Dir, err)
	}
	if check := preflight.CheckDirectoryAccess("Download directory", opts.Dir); !check.Passed {
		return Result{}, services.Wrap(services.ErrConfiguration, "fetch", "check download dir", check.Detail, nil)
	}

	target := filepath.Join(opts.Dir, localName(base))
	if !opts.Overwrite {
		target = freeName(target)
	}

	body, size, err := src.OpenFile(ctx, src.FileURL(base))
	if err != nil {
		return Result{}, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(opts.Dir, ".mvdown-*.part")
	if err != nil {
		return Result{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	var dst io.Writer = tmp
	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription(base),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
		dst = io.MultiWriter(tmp, bar)
	}

	written, err := io.Copy(dst, body)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransport, "fetch", "copy", base, err)
	}
	if size >= 0 && written != size {
		return Result{}, services.Wrap(services.ErrTransport, "fetch", "copy",
			fmt.Sprintf("short read: got %d of %d bytes", written, size), nil)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if err := tmp.Sync(); err != nil {
		return Result{}, fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return Result{}, fmt.Errorf("move into place: %w", err)
	}
	committed = true

	result := Result{Path: target, Bytes: written}
	if IsAudio(target) {
		meta, err := ReadMetadata(target)
		if err != nil {
			logger.Debug("no embedded metadata", logging.String("path", target), logging.Error(err))
		} else {
			result.Metadata = meta
		}
	}
	logger.Info("file saved", logging.String("path", target), logging.Int64("bytes", written))
	return result, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	base := filepath.Base(filepath.FromSlash(name))
	if name == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", services.Wrap(services.ErrValidation, "fetch", "file name", fmt.Sprintf("invalid file name %q", name), nil)
	}
	return base, nil
}

// localNameReplacer maps characters some filesystems reject.
var localNameReplacer = strings.NewReplacer(
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// localName is the on-disk name for a server file.
func localName(name string) string {
	local := strings.TrimSpace(localNameReplacer.Replace(name))
	if local == "" || strings.Trim(local, ".") == "" {
		return "download"
	}
	return local
}

// freeName returns path, or "name (N).ext" for the first N that is unused.
func freeName(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}
