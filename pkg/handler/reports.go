package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/errors"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/lifecycle"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
)

type reportDTO struct {
	ID                 string                    `json:"id"`
	SurveyID           string                    `json:"surveyId"`
	Kind               pavement.ReportKind       `json:"kind"`
	Status             pavement.ReportStatus     `json:"status"`
	CreatedBy          string                    `json:"createdBy"`
	RejectionReason    *string                   `json:"rejectionReason"`
	CancellationReason *string                   `json:"cancellationReason"`
	ApproverID         *string                   `json:"approverId"`
	DailyLog           *pavement.DailyServiceLog `json:"dailyLog,omitempty"`
	ObservationIDs     []string                  `json:"observationIds"`
	CreatedAt          time.Time                 `json:"createdAt"`
	UpdatedAt          time.Time                 `json:"updatedAt"`
}

func newReportDTO(r pavement.Report) reportDTO {
	observationIDs := r.ObservationIDs
	if observationIDs == nil {
		observationIDs = []string{}
	}

	return reportDTO{
		ID:                 r.ID,
		SurveyID:           r.SurveyID,
		Kind:               r.Kind,
		Status:             r.Status,
		CreatedBy:          r.CreatedBy,
		RejectionReason:    r.RejectionReason,
		CancellationReason: r.CancellationReason,
		ApproverID:         r.ApproverID,
		DailyLog:           r.DailyLog,
		ObservationIDs:     observationIDs,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type createReportRequest struct {
	SurveyID       string                    `json:"surveyId"`
	Kind           pavement.ReportKind       `json:"kind"`
	ObservationIDs []string                  `json:"observationIds"`
	DailyLog       *pavement.DailyServiceLog `json:"dailyLog"`
}

type editReportRequest struct {
	ObservationIDs []string                  `json:"observationIds"`
	DailyLog       *pavement.DailyServiceLog `json:"dailyLog"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	Approve *bool `json:"approve"`
}

type updateObservationRequest struct {
	DefectTypeID *string `json:"defectTypeId"`
}

type lockResponse struct {
	ObservationID string `json:"observationId"`
	Locked        bool   `json:"locked"`
}

//actorHandlerFunc is a handler that requires an identified actor
type actorHandlerFunc func(w http.ResponseWriter, r *http.Request, actor pavement.Actor)

func withActor(fn actorHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, err)
			return
		}
		fn(w, r, actor)
	}
}

func newListReportsHandler(reports ReportService) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor pavement.Actor) {
		if actor.Role == pavement.RoleInspector {
			writeError(w, errors.Access("the review queue is not available to inspectors"))
			return
		}

		status := pavement.ReportStatus(r.URL.Query().Get("status"))
		if status != "" && !status.IsValid() {
			writeError(w, errors.Validation("unknown report status \"%s\"", status))
			return
		}

		result, err := reports.ListReports(r.Context(), status)
		if err != nil {
			writeError(w, err)
			return
		}

		body := make([]reportDTO, 0, len(result))
		for _, report := range result {
			body = append(body, newReportDTO(report))
		}

		writeJSON(w, http.StatusOK, body)
	})
}

func newGetReportHandler(reports ReportService) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor pavement.Actor) {
		report, err := reports.GetReport(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newReportDTO(report))
	})
}

func newCreateReportHandler(reports ReportService) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor pavement.Actor) {
		req := createReportRequest{}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}

		report, err := reports.CreateReport(r.Context(), actor, lifecycle.CreateRequest{
			SurveyID:       req.SurveyID,
			Kind:           req.Kind,
			ObservationIDs: req.ObservationIDs,
			DailyLog:       req.DailyLog,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Add("Location", "/api/v1/reports/"+report.ID)
		writeJSON(w, http.StatusCreated, newReportDTO(report))
	})
}

func newEditReportHandler(reports ReportService) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor pavement.Actor) {
		req := editReportRequest{}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}

		report, err := reports.EditReport(r.Context(), actor, chi.URLParam(r, "id"), lifecycle.EditRequest{
			ObservationIDs: req.ObservationIDs,
			DailyLog:       req.DailyLog,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, newReportDTO(report))
	})
}

func newDeleteReportHandler(reports ReportService) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor pavement.Actor) {
		if err := reports.DeleteReport(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func newApproveReportHandler(reports ReportService) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor pavement.Actor) {
		report, err := reports.Approve(r.Context(), actor, chi.URLParam(r, "id"))
		respondWithReport(w, report, err)
	})
}

func newRejectReportHandler(reports ReportService) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor pavement.Actor) {
		req := reasonRequest{}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}

		report, err := reports.Reject(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
		respondWithReport(w, report, err)
	})
}

func newRequestCancellationHandler(reports ReportService) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor pavement.Actor) {
		req := reasonRequest{}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}

		report, err := reports.RequestCancellation(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
		respondWithReport(w, report, err)
	})
}

func newResolveCancellationHandler(reports ReportService) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor pavement.Actor) {
		req := resolveRequest{}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}

		if req.Approve == nil {
			writeError(w, errors.Validation("approve must be true or false"))
			return
		}

		report, err := reports.ResolveCancellation(r.Context(), actor, chi.URLParam(r, "id"), *req.Approve)
		respondWithReport(w, report, err)
	})
}

func respondWithReport(w http.ResponseWriter, report pavement.Report, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportDTO(report))
}

func newObservationLockHandler(reports ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		locked, err := reports.IsObservationLocked(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, lockResponse{ObservationID: id, Locked: locked})
	}
}

func newUpdateObservationHandler(reports ReportService) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor pavement.Actor) {
		req := updateObservationRequest{}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}

		if err := reports.UpdateObservationDefect(r.Context(), chi.URLParam(r, "id"), req.DefectTypeID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func newDeleteObservationHandler(reports ReportService) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor pavement.Actor) {
		if err := reports.DeleteObservation(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func newDeleteSurveyHandler(reports ReportService) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor pavement.Actor) {
		if err := reports.DeleteSurvey(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
