package lifecycle

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/errors"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
)

//Store is the persistence a Service needs. Every write is all-or-nothing, and status
//writes must fail with pavement.ErrStaleStatus if the stored status is no longer
//the expected source status.
type Store interface {
	GetSurvey(ctx context.Context, id string) (pavement.Survey, error)
	GetReport(ctx context.Context, id string) (pavement.Report, error)
	ListReports(ctx context.Context, filter pavement.ReportFilter) ([]pavement.Report, error)
	ListObservations(ctx context.Context, filter pavement.ObservationFilter) ([]pavement.Observation, error)

	CreateReport(ctx context.Context, report pavement.Report) error
	ReplaceReportContent(ctx context.Context, change pavement.ContentChange) error
	UpdateReportStatus(ctx context.Context, change pavement.StatusChange) error
	DeleteReport(ctx context.Context, id string, from pavement.ReportStatus) error

	IsObservationLocked(ctx context.Context, observationID string) (bool, error)
	UpdateObservationDefect(ctx context.Context, observationID string, defectTypeID *string) error
	DeleteObservation(ctx context.Context, observationID string) error
	DeleteSurvey(ctx context.Context, surveyID string) error
}

//Notifier is told about every committed status change
type Notifier interface {
	ReportStatusChanged(report pavement.Report, previous pavement.ReportStatus)
}

type nopNotifier struct{}

func (nopNotifier) ReportStatusChanged(pavement.Report, pavement.ReportStatus) {}

//Service runs the report approval state machine
type Service struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

//NewService creates a lifecycle service on top of the provided store. A nil notifier is allowed.
func NewService(store Store, notifier Notifier) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{store: store, notifier: notifier, now: time.Now}
}

//CreateRequest holds the content of a new report
type CreateRequest struct {
	SurveyID       string
	Kind           pavement.ReportKind
	ObservationIDs []string
	DailyLog       *pavement.DailyServiceLog
}

//EditRequest holds the complete replacement content of a report
type EditRequest struct {
	ObservationIDs []string
	DailyLog       *pavement.DailyServiceLog
}

//CreateReport creates a PENDING report for a survey, linking the given observations
func (s *Service) CreateReport(ctx context.Context, actor pavement.Actor, req CreateRequest) (pavement.Report, error) {
	if err := Authorize(actor, TransitionCreate); err != nil {
		return pavement.Report{}, err
	}

	if !req.Kind.IsValid() {
		return pavement.Report{}, errors.Validation("unknown report kind %q", req.Kind)
	}

	survey, err := s.store.GetSurvey(ctx, req.SurveyID)
	if err != nil {
		return pavement.Report{}, s.translate("create report", "survey", req.SurveyID, err)
	}

	if survey.InspectorID != "" && survey.InspectorID != actor.ID {
		return pavement.Report{}, errors.Access("only the inspector who performed the survey may report on it").WithContext("survey", survey.ID)
	}

	observationIDs, err := s.validateContent(ctx, survey.ID, req.Kind, req.ObservationIDs, req.DailyLog)
	if err != nil {
		return pavement.Report{}, err
	}

	now := s.now()
	report := pavement.Report{
		ID:             uuid.New().String(),
		SurveyID:       survey.ID,
		Kind:           req.Kind,
		Status:         pavement.StatusPending,
		CreatedBy:      actor.ID,
		DailyLog:       req.DailyLog,
		ObservationIDs: observationIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err = s.store.CreateReport(ctx, report); err != nil {
		return pavement.Report{}, s.translate("create report", "survey", req.SurveyID, err)
	}

	s.committed(report, "", actor)

	return report, nil
}

//EditReport replaces the content of a PENDING or REJECTED report. A rejected report
//becomes CORRECTED, a pending one keeps its status.
func (s *Service) EditReport(ctx context.Context, actor pavement.Actor, reportID string, req EditRequest) (pavement.Report, error) {
	if err := Authorize(actor, TransitionEdit); err != nil {
		return pavement.Report{}, err
	}

	report, err := s.GetReport(ctx, reportID)
	if err != nil {
		return pavement.Report{}, err
	}

	if report.CreatedBy != actor.ID {
		return pavement.Report{}, errors.Access("only the author may edit a report").WithContext("report", reportID)
	}

	if err = checkTransition(TransitionEdit, report); err != nil {
		return pavement.Report{}, err
	}

	observationIDs, err := s.validateContent(ctx, report.SurveyID, report.Kind, req.ObservationIDs, req.DailyLog)
	if err != nil {
		return pavement.Report{}, err
	}

	change := pavement.ContentChange{
		ReportID:       report.ID,
		From:           report.Status,
		To:             report.Status,
		ObservationIDs: observationIDs,
		DailyLog:       req.DailyLog,
	}
	if report.Status == pavement.StatusRejected {
		change.To = pavement.StatusCorrected
	}

	if err = s.store.ReplaceReportContent(ctx, change); err != nil {
		return pavement.Report{}, s.translate("edit report", "report", reportID, err)
	}

	previous := report.Status
	report.Status = change.To
	report.ObservationIDs = observationIDs
	report.DailyLog = req.DailyLog
	report.UpdatedAt = s.now()

	if previous != report.Status {
		s.committed(report, previous, actor)
	}

	return report, nil
}

//Approve moves a PENDING or CORRECTED report to APPROVED and records the approver
func (s *Service) Approve(ctx context.Context, actor pavement.Actor, reportID string) (pavement.Report, error) {
	if err := Authorize(actor, TransitionApprove); err != nil {
		return pavement.Report{}, err
	}

	return s.transition(ctx, actor, TransitionApprove, reportID, func(r pavement.Report) pavement.StatusChange {
		approver := actor.ID
		return pavement.StatusChange{
			To:                 pavement.StatusApproved,
			RejectionReason:    nil,
			CancellationReason: r.CancellationReason,
			ApproverID:         &approver,
		}
	})
}

//Reject moves any report that is not APPROVED to REJECTED with the given reason
func (s *Service) Reject(ctx context.Context, actor pavement.Actor, reportID, reason string) (pavement.Report, error) {
	if err := Authorize(actor, TransitionReject); err != nil {
		return pavement.Report{}, err
	}

	trimmed, err := validateReason(reason, minRejectionReasonLength)
	if err != nil {
		return pavement.Report{}, err
	}

	return s.transition(ctx, actor, TransitionReject, reportID, func(r pavement.Report) pavement.StatusChange {
		return pavement.StatusChange{
			To:                 pavement.StatusRejected,
			RejectionReason:    &trimmed,
			CancellationReason: nil,
			ApproverID:         r.ApproverID,
		}
	})
}

//RequestCancellation asks an administrator to withdraw the approval of a report
func (s *Service) RequestCancellation(ctx context.Context, actor pavement.Actor, reportID, reason string) (pavement.Report, error) {
	if err := Authorize(actor, TransitionRequestCancellation); err != nil {
		return pavement.Report{}, err
	}

	trimmed, err := validateReason(reason, minCancellationReasonLength)
	if err != nil {
		return pavement.Report{}, err
	}

	return s.transition(ctx, actor, TransitionRequestCancellation, reportID, func(r pavement.Report) pavement.StatusChange {
		return pavement.StatusChange{
			To:                 pavement.StatusCancellationPending,
			RejectionReason:    r.RejectionReason,
			CancellationReason: &trimmed,
			ApproverID:         r.ApproverID,
		}
	})
}

//ResolveCancellation settles a pending cancellation request. Approving it rejects the
//report, denying it restores the approval.
func (s *Service) ResolveCancellation(ctx context.Context, actor pavement.Actor, reportID string, approve bool) (pavement.Report, error) {
	if err := Authorize(actor, TransitionResolveCancellation); err != nil {
		return pavement.Report{}, err
	}

	return s.transition(ctx, actor, TransitionResolveCancellation, reportID, func(r pavement.Report) pavement.StatusChange {
		if !approve {
			return pavement.StatusChange{
				To:                 pavement.StatusApproved,
				RejectionReason:    r.RejectionReason,
				CancellationReason: nil,
				ApproverID:         r.ApproverID,
			}
		}

		original := ""
		if r.CancellationReason != nil {
			original = *r.CancellationReason
		}
		reason := CancellationRejectionReason(original)

		return pavement.StatusChange{
			To:                 pavement.StatusRejected,
			RejectionReason:    &reason,
			CancellationReason: nil,
			ApproverID:         r.ApproverID,
		}
	})
}

//CancellationRejectionReason is the rejection reason stored when a cancellation is approved
func CancellationRejectionReason(cancellationReason string) string {
	return fmt.Sprintf("Approval cancelled at administrator request. Reason: %s", cancellationReason)
}

//DeleteReport removes a PENDING or REJECTED report together with its observation links
func (s *Service) DeleteReport(ctx context.Context, actor pavement.Actor, reportID string) error {
	if err := Authorize(actor, TransitionDelete); err != nil {
		return err
	}

	report, err := s.GetReport(ctx, reportID)
	if err != nil {
		return err
	}

	if actor.Role == pavement.RoleInspector && report.CreatedBy != actor.ID {
		return errors.Access("only the author may delete a report").WithContext("report", reportID)
	}

	if err = checkTransition(TransitionDelete, report); err != nil {
		return err
	}

	if err = s.store.DeleteReport(ctx, report.ID, report.Status); err != nil {
		return s.translate("delete report", "report", reportID, err)
	}

	log.WithFields(log.Fields{"report": report.ID, "status": report.Status, "actor": actor.ID}).Info("report deleted")

	return nil
}

//GetReport returns a single report
func (s *Service) GetReport(ctx context.Context, reportID string) (pavement.Report, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return pavement.Report{}, s.translate("get report", "report", reportID, err)
	}
	return report, nil
}

//ListReports returns the reports in the given status, or all reports if status is empty
func (s *Service) ListReports(ctx context.Context, status pavement.ReportStatus) ([]pavement.Report, error) {
	if status != "" && !status.IsValid() {
		return nil, errors.Validation("unknown report status %q", status)
	}

	reports, err := s.store.ListReports(ctx, pavement.ReportFilter{Status: status})
	if err != nil {
		return nil, s.translate("list reports", "status", string(status), err)
	}
	return reports, nil
}

//transition performs a read-verify-write status change. next builds the new status
//and the full set of nullable fields from the current report.
func (s *Service) transition(ctx context.Context, actor pavement.Actor, t Transition, reportID string, next func(pavement.Report) pavement.StatusChange) (pavement.Report, error) {
	report, err := s.GetReport(ctx, reportID)
	if err != nil {
		return pavement.Report{}, err
	}

	if err = checkTransition(t, report); err != nil {
		return pavement.Report{}, err
	}

	change := next(report)
	change.ReportID = report.ID
	change.From = report.Status

	if err = s.store.UpdateReportStatus(ctx, change); err != nil {
		return pavement.Report{}, s.translate(string(t), "report", reportID, err)
	}

	report.Status = change.To
	report.RejectionReason = change.RejectionReason
	report.CancellationReason = change.CancellationReason
	report.ApproverID = change.ApproverID
	report.UpdatedAt = s.now()

	s.committed(report, change.From, actor)

	return report, nil
}

//validateContent checks that every linked observation belongs to the survey and that
//the payload matches the report kind. Duplicate ids are collapsed.
func (s *Service) validateContent(ctx context.Context, surveyID string, kind pavement.ReportKind, observationIDs []string, dailyLog *pavement.DailyServiceLog) ([]string, error) {
	switch kind {
	case pavement.KindDailyService:
		if dailyLog == nil {
			return nil, errors.Validation("daily service reports require a daily log")
		}
		if err := dailyLog.Validate(); err != nil {
			return nil, errors.Validation("invalid daily log").WithCause(err)
		}
	case pavement.KindPhotographic:
		if dailyLog != nil {
			return nil, errors.Validation("photographic reports do not carry a daily log")
		}
	}

	observations, err := s.store.ListObservations(ctx, pavement.ObservationFilter{SurveyID: surveyID})
	if err != nil {
		return nil, s.translate("list observations", "survey", surveyID, err)
	}

	known := map[string]pavement.Observation{}
	for _, o := range observations {
		known[o.ID] = o
	}

	seen := map[string]bool{}
	unique := []string{}

	for _, id := range observationIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		o, ok := known[id]
		if !ok {
			return nil, errors.Validation("observation %s does not belong to survey %s", id, surveyID)
		}
		if kind == pavement.KindPhotographic && !o.HasDefect() {
			return nil, errors.Validation("observation %s has no defect type and cannot be part of a photographic report", id)
		}

		unique = append(unique, id)
	}

	return unique, nil
}

func (s *Service) committed(report pavement.Report, previous pavement.ReportStatus, actor pavement.Actor) {
	log.WithFields(log.Fields{
		"report": report.ID,
		"survey": report.SurveyID,
		"kind":   report.Kind,
		"from":   previous,
		"to":     report.Status,
		"actor":  actor.ID,
	}).Info("report status changed")

	s.notifier.ReportStatusChanged(report, previous)
}

//translate maps collaborator errors onto typed errors. Anything unexpected is logged
//with its context and hidden behind a generic internal error.
func (s *Service) translate(operation, entity, id string, err error) error {
	var typed *errors.Error

	switch {
	case goerrors.As(err, &typed):
		return typed
	case goerrors.Is(err, pavement.ErrNotFound):
		return errors.NotFound(entity, id)
	case goerrors.Is(err, pavement.ErrDuplicateReport):
		return errors.Conflict("survey already has a report of this kind").WithContext(entity, id)
	case goerrors.Is(err, pavement.ErrStaleStatus):
		return errors.Conflict("report status was changed by someone else, reload and retry").WithContext(entity, id)
	case goerrors.Is(err, pavement.ErrHasDependents):
		return errors.Conflict("%s is referenced by reports", entity).WithContext(entity, id)
	case goerrors.Is(err, pavement.ErrObservationLocked):
		return errors.Conflict("observation is locked by an approved report").WithContext(entity, id)
	case goerrors.Is(err, pavement.ErrUnknownDefectType):
		return errors.Validation("unknown defect type").WithContext(entity, id)
	}

	log.WithFields(log.Fields{"operation": operation, entity: id}).Errorf("storage failure: %s", err.Error())

	return errors.Internal(operation)
}
