package zipfs

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"romeetl/internal/datasource/httpds"
)

func buildZip(tb testing.TB, files map[string]string) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			tb.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func writeZip(tb testing.TB, files map[string]string) string {
	tb.Helper()
	p := filepath.Join(tb.TempDir(), "RefRomeXml.zip")
	if err := os.WriteFile(p, buildZip(tb, files), 0o644); err != nil {
		tb.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestOpenLocal(t *testing.T) {
	t.Parallel()

	p := writeZip(t, map[string]string{"a.xml": "<root/>"})
	a, err := Open(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if a.Name != "RefRomeXml.zip" {
		t.Fatalf("Name = %q", a.Name)
	}
	if len(a.Checksum) != 16 {
		t.Fatalf("Checksum = %q, want 16 hex digits", a.Checksum)
	}
	b, err := fs.ReadFile(a, "a.xml")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "<root/>" {
		t.Fatalf("content = %q", b)
	}
	if _, err := fs.ReadFile(a, "missing.xml"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing member error = %v, want fs.ErrNotExist", err)
	}
}

func TestFingerprintStable(t *testing.T) {
	t.Parallel()

	data := buildZip(t, map[string]string{"a.xml": "<root/>"})
	s1, n, err := Fingerprint(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if n != int64(len(data)) {
		t.Fatalf("size = %d, want %d", n, len(data))
	}
	s2, _, _ := Fingerprint(bytes.NewReader(data))
	if s1 != s2 {
		t.Fatalf("fingerprint not stable: %s vs %s", s1, s2)
	}
	s3, _, _ := Fingerprint(bytes.NewReader(append(data, 0)))
	if s1 == s3 {
		t.Fatal("different bytes share a fingerprint")
	}
}

func TestOpenNotZip(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(p, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(context.Background(), p, nil); err == nil {
		t.Fatal("expected error for non-zip file")
	}
	if _, err := Open(context.Background(), filepath.Join(t.TempDir(), "none.zip"), nil); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing archive error = %v, want fs.ErrNotExist", err)
	}
}

func TestOpenRemote(t *testing.T) {
	t.Parallel()

	data := buildZip(t, map[string]string{"b.xml": "<x/>"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	a, err := Open(context.Background(), srv.URL+"/RefRomeXml.zip?v=330", httpds.NewClient(httpds.Config{}))
	if err != nil {
		t.Fatalf("Open remote: %v", err)
	}
	tmp := a.f.Name()
	if a.Name != "RefRomeXml.zip" {
		t.Fatalf("Name = %q", a.Name)
	}
	if _, err := fs.Stat(a, "b.xml"); err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(tmp); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temporary download not removed: %v", err)
	}
}

func TestIsRemote(t *testing.T) {
	t.Parallel()

	for loc, want := range map[string]bool{
		"https://example.org/rome.zip": true,
		"HTTP://x/y.zip":               true,
		"/tmp/rome.zip":                false,
		"rome.zip":                     false,
	} {
		if got := IsRemote(loc); got != want {
			t.Fatalf("IsRemote(%q) = %v, want %v", loc, got, want)
		}
	}
}
