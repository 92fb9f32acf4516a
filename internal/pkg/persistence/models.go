package persistence

import (
	"time"

	"gorm.io/gorm"
)

//Road persists a road and its total length
type Road struct {
	gorm.Model
	RID          string `gorm:"column:rid;unique"`
	LengthKm     float64
	RoadSegments []RoadSegment
}

//RoadSegment persists the kilometer bounds of a road segment
type RoadSegment struct {
	gorm.Model
	SegmentID string `gorm:"unique"`
	RoadID    uint
	Road      *Road
	KmStart   float64
	KmEnd     float64
}

//DefectType persists the defect catalog
type DefectType struct {
	ID     string `gorm:"primaryKey"`
	Code   string `gorm:"unique"`
	Name   string
	Weight float64
}

//Survey persists an inspection visit
type Survey struct {
	ID          string `gorm:"primaryKey"`
	SegmentID   string `gorm:"index"`
	InspectorID string
	Date        time.Time
	CreatedAt   time.Time
}

//Observation persists a geotagged photograph
type Observation struct {
	ID           string  `gorm:"primaryKey"`
	SurveyID     string  `gorm:"index"`
	SegmentID    string  `gorm:"index"`
	DefectTypeID *string `gorm:"index"`
	Latitude     float64
	Longitude    float64
	CapturedAt   time.Time
}

//DailyLog holds the structured payload of a daily service report
type DailyLog struct {
	Weather  string
	Shift    string
	CrewSize int
	Notes    string
}

//Report persists a report and its approval state. A survey has at most one report per kind.
type Report struct {
	ID                 string `gorm:"primaryKey"`
	SurveyID           string `gorm:"uniqueIndex:idx_report_survey_kind"`
	Kind               string `gorm:"uniqueIndex:idx_report_survey_kind"`
	Status             string `gorm:"index"`
	CreatedBy          string
	RejectionReason    *string
	CancellationReason *string
	ApproverID         *string
	HasDailyLog        bool
	DailyLog           DailyLog `gorm:"embedded;embeddedPrefix:daily_"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

//ReportObservation links a report to an observation
type ReportObservation struct {
	ReportID      string `gorm:"primaryKey"`
	ObservationID string `gorm:"primaryKey;index"`
	Position      int
}
