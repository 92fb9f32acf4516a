package igg

import (
	"sort"
	"time"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
)

//SortSurveys orders surveys by ascending date, breaking ties by id
func SortSurveys(surveys []pavement.Survey) {
	sort.SliceStable(surveys, func(i, j int) bool {
		if surveys[i].Date.Equal(surveys[j].Date) {
			return surveys[i].ID < surveys[j].ID
		}
		return surveys[i].Date.Before(surveys[j].Date)
	})
}

//Latest returns the last survey of a date ordered slice
func Latest(surveys []pavement.Survey) (pavement.Survey, bool) {
	if len(surveys) == 0 {
		return pavement.Survey{}, false
	}
	return surveys[len(surveys)-1], true
}

//Nearest returns the survey whose date is closest to the reference date. Surveys are
//scanned in the given order and the first one found wins a tie, so with date ordered
//input the earlier of two equally distant surveys is picked.
func Nearest(surveys []pavement.Survey, reference time.Time) (pavement.Survey, bool) {
	if len(surveys) == 0 {
		return pavement.Survey{}, false
	}

	best := surveys[0]
	bestDistance := distance(best.Date, reference)

	for _, s := range surveys[1:] {
		if d := distance(s.Date, reference); d < bestDistance {
			best = s
			bestDistance = d
		}
	}

	return best, true
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
