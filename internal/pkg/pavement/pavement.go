package pavement

import (
	"errors"
	"time"
)

//Road is a road that is split into consecutive segments
type Road struct {
	ID         string
	LengthKm   float64
	SegmentIDs []string
}

//Segment is a kilometer interval of a road
type Segment struct {
	ID      string
	RoadID  string
	KmStart float64
	KmEnd   float64
}

//Survey is a single inspection visit to a segment
type Survey struct {
	ID          string
	SegmentID   string
	InspectorID string
	Date        time.Time
}

//DefectType is reference data describing a kind of pavement defect and its weight factor
type DefectType struct {
	ID     string
	Code   string
	Name   string
	Weight float64
}

//Observation is a geotagged photograph captured during a survey
type Observation struct {
	ID           string
	SurveyID     string
	SegmentID    string
	DefectTypeID *string
	Latitude     float64
	Longitude    float64
	CapturedAt   time.Time
}

//HasDefect returns true if the observation documents a photographic defect
func (o Observation) HasDefect() bool {
	return o.DefectTypeID != nil && *o.DefectTypeID != ""
}

//ObservationFilter narrows an observation listing. Zero values do not filter.
type ObservationFilter struct {
	SurveyID      string
	SegmentID     string
	HasDefectType bool
}

//ReportFilter narrows a report listing. Zero values do not filter.
type ReportFilter struct {
	SurveyIDs []string
	Kind      ReportKind
	Status    ReportStatus
}

var (
	//ErrNotFound is returned by collaborators when a referenced record does not exist
	ErrNotFound = errors.New("record not found")
	//ErrDuplicateReport is returned when a survey already has a report of the same kind
	ErrDuplicateReport = errors.New("survey already has a report of this kind")
	//ErrStaleStatus is returned when a report status changed between read and write
	ErrStaleStatus = errors.New("report status was changed concurrently")
	//ErrHasDependents is returned when a record is still referenced by reports
	ErrHasDependents = errors.New("record is referenced by reports")
	//ErrObservationLocked is returned when an observation is referenced by an approved report
	ErrObservationLocked = errors.New("observation is locked by an approved report")
	//ErrUnknownDefectType is returned when an observation refers to a defect type missing from the catalog
	ErrUnknownDefectType = errors.New("defect type is not in the catalog")
)
