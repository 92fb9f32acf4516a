package pavement

import (
	"fmt"
	"strings"
	"time"
)

//ReportKind tells photographic reports apart from daily service logs
type ReportKind string

const (
	KindPhotographic ReportKind = "PHOTOGRAPHIC"
	KindDailyService ReportKind = "DAILY_SERVICE"
)

//IsValid returns true for the known report kinds
func (k ReportKind) IsValid() bool {
	return k == KindPhotographic || k == KindDailyService
}

//ReportStatus is the approval status of a report
type ReportStatus string

const (
	StatusPending             ReportStatus = "PENDING"
	StatusCorrected           ReportStatus = "CORRECTED"
	StatusApproved            ReportStatus = "APPROVED"
	StatusRejected            ReportStatus = "REJECTED"
	StatusCancellationPending ReportStatus = "CANCELLATION_PENDING"
)

//IsValid returns true for the known statuses
func (s ReportStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusCorrected, StatusApproved, StatusRejected, StatusCancellationPending:
		return true
	}
	return false
}

//Report bundles the observations of a survey for engineering review
type Report struct {
	ID                 string
	SurveyID           string
	Kind               ReportKind
	Status             ReportStatus
	CreatedBy          string
	RejectionReason    *string
	CancellationReason *string
	ApproverID         *string
	DailyLog           *DailyServiceLog
	ObservationIDs     []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

//StatusChange describes a guarded status write. The write only succeeds if the
//stored status still equals From.
type StatusChange struct {
	ReportID           string
	From               ReportStatus
	To                 ReportStatus
	RejectionReason    *string
	CancellationReason *string
	ApproverID         *string
}

//ContentChange replaces the observation links and payload of a report wholesale
type ContentChange struct {
	ReportID       string
	From           ReportStatus
	To             ReportStatus
	ObservationIDs []string
	DailyLog       *DailyServiceLog
}

//Weather conditions accepted in a daily service log
var knownWeather = map[string]bool{"sunny": true, "cloudy": true, "rainy": true}

//Shifts accepted in a daily service log
var knownShifts = map[string]bool{"morning": true, "afternoon": true, "night": true}

//DailyServiceLog is the structured payload of a DAILY_SERVICE report
type DailyServiceLog struct {
	Weather  string `json:"weather"`
	Shift    string `json:"shift"`
	CrewSize int    `json:"crewSize"`
	Notes    string `json:"notes"`
}

//Validate checks the log fields against their allowed values
func (l DailyServiceLog) Validate() error {
	if !knownWeather[strings.ToLower(l.Weather)] {
		return fmt.Errorf("unknown weather %q", l.Weather)
	}
	if !knownShifts[strings.ToLower(l.Shift)] {
		return fmt.Errorf("unknown shift %q", l.Shift)
	}
	if l.CrewSize < 1 {
		return fmt.Errorf("crew size must be at least 1, got %d", l.CrewSize)
	}
	return nil
}
