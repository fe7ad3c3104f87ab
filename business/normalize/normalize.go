// Package normalize implements C6 PassageNormalizer (spec §4.6): turns a raw
// vendor "depart" payload plus the station it was fetched for into canonical
// realtime.Passage records. Grounded on the teacher's normalize-at-the-edge
// convention (business/data/gtfs/trip_update.go parses a protobuf feed into
// the store's own structs before anything downstream sees it) -- here the
// edge format is the vendor's tree-shaped depart payload instead.
package normalize

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/leonardbinet/railfeed/business/clock"
	"github.com/leonardbinet/railfeed/business/data/realtime"
	"github.com/leonardbinet/railfeed/foundation/logger"
)

// Passage is one entry of a vendor depart payload, already parsed from its
// wire encoding (XML/JSON) by the caller. Fields mirror §6's vendor schema.
type Passage struct {
	Date string // "DD/MM/YYYY HH:MM"
	Num  string
	Miss string
	Term string
	Etat string
}

// Payload is one station's raw depart response (§4.6 "tree-shaped with a
// list of train entries"). A payload with a nil Passages slice is the
// "missing train list" case and is silently skipped, per §4.6.
type Payload struct {
	StationID string
	Passages  []Passage
}

// vendorResponse is the wire shape of §4.6's "tree with a root containing a
// collection" -- one <passages> root wrapping zero or more <train> entries.
type vendorResponse struct {
	XMLName xml.Name      `xml:"passages"`
	Trains  []vendorTrain `xml:"train"`
}

type vendorTrain struct {
	Date string `xml:"date"`
	Num  string `xml:"num"`
	Miss string `xml:"miss"`
	Term string `xml:"term"`
	Etat string `xml:"etat"`
}

// ParsePayload decodes one station's raw vendor response body into a
// Payload. A body with no <train> entries yields a Payload with a nil
// Passages slice, which Normalize treats as the "missing train list" case.
func ParsePayload(stationID string, body []byte) (Payload, error) {
	var resp vendorResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return Payload{}, fmt.Errorf("normalize: parsing vendor payload for station %s: %w", stationID, err)
	}

	var passages []Passage
	for _, t := range resp.Trains {
		passages = append(passages, Passage{Date: t.Date, Num: t.Num, Miss: t.Miss, Term: t.Term, Etat: t.Etat})
	}
	return Payload{StationID: stationID, Passages: passages}, nil
}

// Normalize converts one station's raw payload, fetched at requestedAt, into
// canonical realtime.Passage records. Returns nil (not an error) when the
// payload's train list is absent, per §4.6's "silently skips" rule.
func Normalize(p Payload, requestedAt time.Time, loc *time.Location, log *logger.Logger) []realtime.Passage {
	if p.Passages == nil {
		if log != nil {
			log.Debugf("normalize: station %s has no train list, skipping", p.StationID)
		}
		return nil
	}

	stationID := stationID8ToID(p.StationID)
	requestDay, requestTime := clock.ReduceObservedPassage(requestedAt, requestedAt.Hour(), requestedAt.Minute(), requestedAt.Second(), loc)

	out := make([]realtime.Passage, 0, len(p.Passages))
	for _, entry := range p.Passages {
		observedDate, hour, minute, err := parseVendorDate(entry.Date, loc)
		if err != nil {
			if log != nil {
				log.Debugf("normalize: station %s dropping entry with unparsable date %q: %v", p.StationID, entry.Date, err)
			}
			continue
		}
		expectedDay, expectedTime := clock.ReduceObservedPassage(observedDate, hour, minute, 0, loc)

		dayTrainNum := expectedDay.String() + "_" + entry.Num
		freshness := requestTime.Seconds - expectedTime.Seconds
		if freshness < 0 {
			freshness = -freshness
		}

		out = append(out, realtime.Passage{
			StationID:           stationID,
			DayTrainNum:         dayTrainNum,
			ExpectedPassageDay:  expectedDay.String(),
			ExpectedPassageTime: expectedTime.Seconds,
			RequestDay:          requestDay.String(),
			RequestTime:         requestTime.Seconds,
			DataFreshness:       freshness,
			MissionCode:         entry.Miss,
			Terminus:            entry.Term,
			Status:              entry.Etat,
			WrittenAt:           requestedAt,
		})
	}
	return out
}

// stationID8ToID derives station_id from the 8-digit station code used to
// build the request URL (§4.6: "station_id = station[:-1]").
func stationID8ToID(station8 string) string {
	if len(station8) == 0 {
		return station8
	}
	return station8[:len(station8)-1]
}

// parseVendorDate parses the vendor's "DD/MM/YYYY HH:MM" field into its
// calendar date plus hour/minute, ready for clock.ReduceObservedPassage.
func parseVendorDate(s string, loc *time.Location) (time.Time, int, int, error) {
	t, err := time.ParseInLocation("02/01/2006 15:04", s, loc)
	if err != nil {
		return time.Time{}, 0, 0, err
	}
	return t, t.Hour(), t.Minute(), nil
}
