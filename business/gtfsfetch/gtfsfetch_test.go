package gtfsfetch

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/leonardbinet/railfeed/business/objectstore"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFetchExtractsAndMirrorsCanonicalArchive(t *testing.T) {
	is := is.New(t)
	zipBytes := buildZip(t, map[string]string{"agency.txt": "agency_id,agency_name\n1,Acme\n"})

	mux := http.NewServeMux()
	mux.HandleFunc("/index.csv", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file\nhttp://" + r.Host + "/gtfs-lines-last.zip\n"))
	})
	mux.HandleFunc("/gtfs-lines-last.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(zipBytes)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	workDir := t.TempDir()
	objDir := t.TempDir()
	store, err := objectstore.NewFileStore(objDir)
	is.NoErr(err)

	now := time.Date(2022, time.May, 22, 0, 0, 0, 0, time.UTC)
	result, err := Fetch(context.Background(), srv.Client(), srv.URL+"/index.csv", workDir, store, now, nil)
	is.NoErr(err)
	is.Equal(result.ArchiveCount, 1)
	is.Equal(filepath.Base(result.CanonicalDirPath), CanonicalDirName)

	_, err = os.Stat(filepath.Join(result.CanonicalDirPath, "agency.txt"))
	is.NoErr(err)

	keys, err := store.List(context.Background(), "20220522-gtfs")
	is.NoErr(err)
	is.True(len(keys) > 0)
}

func TestFetchFailsWithoutCanonicalDir(t *testing.T) {
	is := is.New(t)
	zipBytes := buildZip(t, map[string]string{"agency.txt": "agency_id\n1\n"})

	mux := http.NewServeMux()
	mux.HandleFunc("/index.csv", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file\nhttp://" + r.Host + "/some-other-line.zip\n"))
	})
	mux.HandleFunc("/some-other-line.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(zipBytes)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.Client(), srv.URL+"/index.csv", t.TempDir(), nil, time.Now(), nil)
	is.True(err != nil)
}
