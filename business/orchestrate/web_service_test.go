package orchestrate

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestHandleHealthz(t *testing.T) {
	is := is.New(t)
	s := NewDiagnosticsServer(&Deps{})

	rr := httptest.NewRecorder()
	s.handleHealthz(rr, httptest.NewRequest("GET", "/healthz", nil))

	is.Equal(rr.Code, 200)
	is.Equal(rr.Header().Get("Application-Status"), "OK")
}

func TestHandleLastCycleBeforeAndAfterRecord(t *testing.T) {
	is := is.New(t)
	s := NewDiagnosticsServer(&Deps{})

	rr := httptest.NewRecorder()
	s.handleLastCycle(rr, httptest.NewRequest("GET", "/cycles/last", nil))
	var empty map[string]string
	is.NoErr(json.Unmarshal(rr.Body.Bytes(), &empty))
	is.Equal(empty["status"], "no cycle yet")

	s.recordCycle(CycleStatus{CompletedAt: time.Now(), Stations: 3, Passages: 7})

	rr2 := httptest.NewRecorder()
	s.handleLastCycle(rr2, httptest.NewRequest("GET", "/cycles/last", nil))
	var got CycleStatus
	is.NoErr(json.Unmarshal(rr2.Body.Bytes(), &got))
	is.Equal(got.Stations, 3)
	is.Equal(got.Passages, 7)
}

func TestPublishNoopWithoutNatsConn(t *testing.T) {
	d := &Deps{}
	// Must not panic when Nats is nil (event publishing disabled).
	d.publish("railfeed.cycle.completed", "payload")
}
