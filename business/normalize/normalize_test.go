package normalize

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestNormalizeDerivesKeysAndFreshness(t *testing.T) {
	is := is.New(t)
	loc, err := time.LoadLocation("Europe/Paris")
	is.NoErr(err)

	requestedAt := time.Date(2022, time.May, 22, 8, 0, 0, 0, loc)
	p := Payload{
		StationID: "87758900",
		Passages: []Passage{
			{Date: "22/05/2022 08:05", Num: "857421", Miss: "ABCD", Term: "Paris", Etat: ""},
		},
	}

	out := Normalize(p, requestedAt, loc, nil)
	is.Equal(len(out), 1)

	got := out[0]
	is.Equal(got.StationID, "8775890")
	is.Equal(got.ExpectedPassageDay, "20220522")
	is.Equal(got.ExpectedPassageTime, 8*3600+5*60)
	is.Equal(got.DayTrainNum, "20220522_857421")
	is.Equal(got.DataFreshness, 5*60)
}

func TestNormalizeEarlyMorningReducesToPreviousDay(t *testing.T) {
	is := is.New(t)
	loc, err := time.LoadLocation("Europe/Paris")
	is.NoErr(err)

	requestedAt := time.Date(2022, time.May, 23, 1, 0, 0, 0, loc)
	p := Payload{
		StationID: "87758900",
		Passages: []Passage{
			{Date: "23/05/2022 01:32", Num: "999001"},
		},
	}

	out := Normalize(p, requestedAt, loc, nil)
	is.Equal(len(out), 1)
	is.Equal(out[0].ExpectedPassageDay, "20220522")
	is.Equal(out[0].ExpectedPassageTime, 25*3600+32*60)
}

func TestNormalizeNilTrainListSkipped(t *testing.T) {
	is := is.New(t)
	loc := time.UTC
	out := Normalize(Payload{StationID: "87758900", Passages: nil}, time.Now(), loc, nil)
	is.True(out == nil)
}
