package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestMemoryStorePutGet(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	p := Passage{StationID: "8775890", DayTrainNum: "20220522_857421", WrittenAt: time.Now()}
	is.NoErr(store.Put(ctx, []Passage{p}))

	got, err := store.Get(ctx, p.Key())
	is.NoErr(err)
	is.Equal(got, p)

	_, err = store.Get(ctx, Key{StationID: "nope", DayTrainNum: "nope"})
	is.Equal(err, ErrItemNotFound)
}

// TestMemoryStoreLastWriterWins covers spec §3's "last writer wins on
// freshness" dedup rule.
func TestMemoryStoreLastWriterWins(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	key := Key{StationID: "8775890", DayTrainNum: "20220522_857421"}
	older := Passage{StationID: key.StationID, DayTrainNum: key.DayTrainNum, Status: "stale", WrittenAt: time.Now()}
	newer := Passage{StationID: key.StationID, DayTrainNum: key.DayTrainNum, Status: "fresh", WrittenAt: older.WrittenAt.Add(time.Second)}

	is.NoErr(store.Put(ctx, []Passage{newer}))
	is.NoErr(store.Put(ctx, []Passage{older}))

	got, err := store.Get(ctx, key)
	is.NoErr(err)
	is.Equal(got.Status, "fresh")
}

func TestMemoryStoreMultiGetPartial(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	present := Passage{StationID: "a", DayTrainNum: "20220522_1", WrittenAt: time.Now()}
	is.NoErr(store.Put(ctx, []Passage{present}))

	found, notFound, err := store.MultiGet(ctx, []Key{present.Key(), {StationID: "b", DayTrainNum: "20220522_2"}})
	is.NoErr(err)
	is.Equal(len(found), 1)
	is.Equal(len(notFound), 1)
	_, ok := found[present.Key()]
	is.True(ok)
}
