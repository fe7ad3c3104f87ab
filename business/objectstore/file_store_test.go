package objectstore

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sort"
	"testing"

	"github.com/matryer/is"
)

func TestFileStorePutGetList(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "objects"))
	is.NoErr(err)

	is.NoErr(store.Put(ctx, JoinKey("features", "20220522", "0500.csv"), bytes.NewBufferString("a,b\n1,2\n")))
	is.NoErr(store.Put(ctx, JoinKey("features", "20220522", "0600.csv"), bytes.NewBufferString("a,b\n3,4\n")))
	is.NoErr(store.Put(ctx, JoinKey("features", "20220523", "0500.csv"), bytes.NewBufferString("a,b\n5,6\n")))

	r, err := store.Get(ctx, JoinKey("features", "20220522", "0500.csv"))
	is.NoErr(err)
	defer r.Close()
	content, err := io.ReadAll(r)
	is.NoErr(err)
	is.Equal(string(content), "a,b\n1,2\n")

	keys, err := store.List(ctx, JoinKey("features", "20220522"))
	is.NoErr(err)
	sort.Strings(keys)
	is.Equal(len(keys), 2)
}
