// Package zipfs opens a ROME archive as an fs.FS. The archive can be a local
// path or an http(s) URL, which is downloaded to a temporary file first.
// Every archive is fingerprinted with xxh3 so a load can record which
// release it came from.
package zipfs

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path"
	"strings"

	"github.com/zeebo/xxh3"

	"romeetl/internal/datasource/httpds"
)

// Archive is an opened zip archive.
type Archive struct {
	*zip.Reader

	// Name is the archive base name.
	Name string
	// Checksum is the xxh3-64 digest of the archive bytes, in hex.
	Checksum string

	f       *os.File
	cleanup func()
}

var _ fs.FS = (*Archive)(nil)

// Close releases the underlying file and any temporary download.
func (a *Archive) Close() error {
	err := a.f.Close()
	if a.cleanup != nil {
		a.cleanup()
	}
	return err
}

// IsRemote reports whether loc designates an http(s) archive.
func IsRemote(loc string) bool {
	l := strings.ToLower(loc)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Open opens the archive at loc. Remote locations are fetched with client,
// which may be nil for local paths.
func Open(ctx context.Context, loc string, client *httpds.Client) (*Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if IsRemote(loc) {
		return fetch(ctx, loc, client)
	}

	f, err := os.Open(loc)
	if err != nil {
		return nil, fmt.Errorf("zipfs: open %s: %w", loc, err)
	}
	a, err := newArchive(f, path.Base(strings.ReplaceAll(loc, `\`, "/")))
	if err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func fetch(ctx context.Context, url string, client *httpds.Client) (*Archive, error) {
	if client == nil {
		client = httpds.NewClient(httpds.Config{MaxRetries: 3})
	}
	tmp, err := os.CreateTemp("", "rome-*.zip")
	if err != nil {
		return nil, fmt.Errorf("zipfs: temp file: %w", err)
	}
	remove := func() { _ = os.Remove(tmp.Name()) }

	n, err := client.Download(ctx, url, tmp)
	if err != nil {
		tmp.Close()
		remove()
		return nil, fmt.Errorf("zipfs: download %s: %w", url, err)
	}
	log.Printf("zipfs: downloaded url=%s bytes=%d tmp=%s", url, n, tmp.Name())

	name := path.Base(url)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	a, err := newArchive(tmp, name)
	if err != nil {
		tmp.Close()
		remove()
		return nil, err
	}
	a.cleanup = remove
	return a, nil
}

func newArchive(f *os.File, name string) (*Archive, error) {
	sum, size, err := Fingerprint(f)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(f, size)
	if err != nil {
		return nil, fmt.Errorf("zipfs: %s: %w", name, err)
	}
	return &Archive{Reader: zr, Name: name, Checksum: sum, f: f}, nil
}

// Fingerprint hashes r from its start with xxh3 and returns the hex digest
// and the number of bytes read.
func Fingerprint(r io.ReaderAt) (string, int64, error) {
	h := xxh3.New()
	n, err := io.Copy(h, io.NewSectionReader(r, 0, 1<<62))
	if err != nil {
		return "", n, fmt.Errorf("zipfs: fingerprint: %w", err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), n, nil
}
