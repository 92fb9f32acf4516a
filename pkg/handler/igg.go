package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/errors"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/igg"
)

type segmentIGGResponse struct {
	SegmentID string        `json:"segmentId"`
	IGG       float64       `json:"igg"`
	Condition igg.Condition `json:"condition"`
}

type roadIGGResponse struct {
	igg.Rollup
	Condition igg.Condition `json:"condition"`
	AsOf      string        `json:"asOf,omitempty"`
}

func newSegmentIGGHandler(calc IGGService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		value, err := calc.SegmentIGG(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, segmentIGGResponse{
			SegmentID: id,
			IGG:       igg.Round2(value),
			Condition: igg.Classify(value),
		})
	}
}

func newSegmentHistoryHandler(calc IGGService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		points, err := calc.History(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, points)
	}
}

func newRoadIGGHandler(calc IGGService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		asOf := r.URL.Query().Get("asOf")

		var rollup igg.Rollup
		var err error

		if asOf == "" {
			rollup, err = calc.RoadSummary(r.Context(), id)
		} else {
			reference, perr := time.Parse("2006-01-02", asOf)
			if perr != nil {
				writeError(w, errors.Validation("asOf must be a date formatted as YYYY-MM-DD"))
				return
			}
			rollup, err = calc.RoadAsOf(r.Context(), id, reference)
		}

		if err != nil {
			writeError(w, err)
			return
		}

		condition := igg.Classify(rollup.IGG)
		rollup.IGG = igg.Round2(rollup.IGG)

		writeJSON(w, http.StatusOK, roadIGGResponse{Rollup: rollup, Condition: condition, AsOf: asOf})
	}
}
