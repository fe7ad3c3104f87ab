package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestPollCycleCollectsAllStations(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<gare/>"))
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL, CallsPerMinute: 6000, RetryTimeout: time.Second}, srv.Client(), nil)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stations := []string{"87758900", "87758901"}
	results := p.PollCycle(ctx, stations)

	is.Equal(len(results), 2)
	for _, r := range results {
		is.NoErr(r.Err)
		is.Equal(string(r.Body), "<gare/>")
	}
}

func TestPollStationErrorYieldsNullPayload(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL, CallsPerMinute: 6000, RetryTimeout: 200 * time.Millisecond}, srv.Client(), nil)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	results := p.PollCycle(ctx, []string{"87758900"})
	is.Equal(len(results), 1)
	is.True(results[0].Err != nil)
	is.True(results[0].Body == nil)
}
