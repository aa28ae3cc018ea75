// Package fetcher acquires raw export files over HTTP or FTP, unpacking ZIP archives.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Router picks the fetcher for a URL by scheme.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

// For returns the fetcher that handles rawURL.
func (r *Router) For(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		if r.HTTP != nil {
			return r.HTTP, nil
		}
	case "ftp":
		if r.FTP != nil {
			return r.FTP, nil
		}
	}
	return nil, eris.Errorf("fetcher: no fetcher for scheme %q", u.Scheme)
}

// Acquire downloads rawURL into destDir as name and returns the final path.
// URLs whose path ends in .zip are unpacked: the "#member" fragment names the
// archive member to keep, otherwise the archive must hold exactly one file.
func (r *Router) Acquire(ctx context.Context, rawURL, destDir, name string) (string, error) {
	f, err := r.For(rawURL)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(rawURL) // parsed successfully in For
	member := u.Fragment
	u.Fragment = ""

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create destination")
	}
	dest := filepath.Join(destDir, name)
	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", u.String()))

	if !strings.EqualFold(path.Ext(u.Path), ".zip") {
		n, err := f.DownloadToFile(ctx, u.String(), dest)
		if err != nil {
			return "", err
		}
		log.Info("raw file downloaded", zap.String("path", dest), zap.Int64("bytes", n))
		return dest, nil
	}

	tmpDir, err := os.MkdirTemp(destDir, ".fetch-*")
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create temp dir")
	}
	defer os.RemoveAll(tmpDir) //nolint:errcheck

	archive := filepath.Join(tmpDir, "archive.zip")
	if _, err := f.DownloadToFile(ctx, u.String(), archive); err != nil {
		return "", err
	}

	var extracted string
	if member != "" {
		extracted, err = ExtractZIPFile(archive, member, tmpDir)
	} else {
		extracted, err = ExtractZIPSingle(archive, tmpDir)
	}
	if err != nil {
		return "", err
	}
	if err := os.Rename(extracted, dest); err != nil {
		return "", eris.Wrap(err, "fetcher: move extracted file")
	}
	log.Info("raw file extracted", zap.String("path", dest), zap.String("member", member))
	return dest, nil
}

// writeFile copies r to path through a temp file in the same directory so a
// failed download never leaves a partial file behind.
func writeFile(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "write file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "rename file")
	}
	return n, nil
}
