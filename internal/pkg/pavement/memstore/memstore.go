//Package memstore is an in-memory implementation of the pavement collaborators,
//used to exercise the lifecycle and the calculator without a database.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
)

//Store keeps every record in maps guarded by a single mutex
type Store struct {
	mu sync.Mutex

	roads        map[string]pavement.Road
	segments     map[string]pavement.Segment
	surveys      map[string]pavement.Survey
	defectTypes  map[string]pavement.DefectType
	observations map[string]pavement.Observation
	reports      map[string]pavement.Report

	segmentOrder []string
}

//New creates an empty store
func New() *Store {
	return &Store{
		roads:        map[string]pavement.Road{},
		segments:     map[string]pavement.Segment{},
		surveys:      map[string]pavement.Survey{},
		defectTypes:  map[string]pavement.DefectType{},
		observations: map[string]pavement.Observation{},
		reports:      map[string]pavement.Report{},
	}
}

//AddRoad stores a road. Segments are attached with AddSegment.
func (s *Store) AddRoad(road pavement.Road) {
	s.mu.Lock()
	defer s.mu.Unlock()
	road.SegmentIDs = nil
	s.roads[road.ID] = road
}

//AddSegment stores a segment and appends it to its road
func (s *Store) AddSegment(segment pavement.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.segments[segment.ID] = segment
	s.segmentOrder = append(s.segmentOrder, segment.ID)

	if road, ok := s.roads[segment.RoadID]; ok {
		road.SegmentIDs = append(road.SegmentIDs, segment.ID)
		s.roads[road.ID] = road
	}
}

//AddSurvey stores a survey
func (s *Store) AddSurvey(survey pavement.Survey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surveys[survey.ID] = survey
}

//AddDefectType stores a defect type
func (s *Store) AddDefectType(dt pavement.DefectType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defectTypes[dt.ID] = dt
}

//AddObservation stores an observation as is, without checking its defect type
func (s *Store) AddObservation(o pavement.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations[o.ID] = o
}

//PutReport stores a report as is, bypassing every guard
func (s *Store) PutReport(r pavement.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = copyReport(r)
}

func (s *Store) GetRoad(ctx context.Context, id string) (pavement.Road, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	road, ok := s.roads[id]
	if !ok {
		return pavement.Road{}, pavement.ErrNotFound
	}
	road.SegmentIDs = append([]string{}, road.SegmentIDs...)
	return road, nil
}

func (s *Store) GetSegment(ctx context.Context, id string) (pavement.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	segment, ok := s.segments[id]
	if !ok {
		return pavement.Segment{}, pavement.ErrNotFound
	}
	return segment, nil
}

func (s *Store) ListSegments(ctx context.Context) ([]pavement.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	segments := []pavement.Segment{}
	for _, id := range s.segmentOrder {
		segments = append(segments, s.segments[id])
	}
	return segments, nil
}

func (s *Store) GetSurvey(ctx context.Context, id string) (pavement.Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	survey, ok := s.surveys[id]
	if !ok {
		return pavement.Survey{}, pavement.ErrNotFound
	}
	return survey, nil
}

func (s *Store) ListSurveys(ctx context.Context, segmentID string) ([]pavement.Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	surveys := []pavement.Survey{}
	for _, survey := range s.surveys {
		if survey.SegmentID == segmentID {
			surveys = append(surveys, survey)
		}
	}

	sort.Slice(surveys, func(i, j int) bool {
		if surveys[i].Date.Equal(surveys[j].Date) {
			return surveys[i].ID < surveys[j].ID
		}
		return surveys[i].Date.Before(surveys[j].Date)
	})

	return surveys, nil
}

func (s *Store) ListDefectTypes(ctx context.Context) ([]pavement.DefectType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := []pavement.DefectType{}
	for _, dt := range s.defectTypes {
		types = append(types, dt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].ID < types[j].ID })
	return types, nil
}

func (s *Store) ListObservations(ctx context.Context, filter pavement.ObservationFilter) ([]pavement.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	observations := []pavement.Observation{}
	for _, o := range s.observations {
		if filter.SurveyID != "" && o.SurveyID != filter.SurveyID {
			continue
		}
		if filter.SegmentID != "" && o.SegmentID != filter.SegmentID {
			continue
		}
		if filter.HasDefectType && !o.HasDefect() {
			continue
		}
		observations = append(observations, o)
	}
	sort.Slice(observations, func(i, j int) bool { return observations[i].ID < observations[j].ID })
	return observations, nil
}

func (s *Store) GetReport(ctx context.Context, id string) (pavement.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[id]
	if !ok {
		return pavement.Report{}, pavement.ErrNotFound
	}
	return copyReport(r), nil
}

func (s *Store) ListReports(ctx context.Context, filter pavement.ReportFilter) ([]pavement.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	surveys := map[string]bool{}
	for _, id := range filter.SurveyIDs {
		surveys[id] = true
	}

	reports := []pavement.Report{}
	for _, r := range s.reports {
		if len(filter.SurveyIDs) > 0 && !surveys[r.SurveyID] {
			continue
		}
		if filter.Kind != "" && r.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		reports = append(reports, copyReport(r))
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].ID < reports[j].ID })
	return reports, nil
}

func (s *Store) CreateReport(ctx context.Context, report pavement.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.surveys[report.SurveyID]; !ok {
		return pavement.ErrNotFound
	}

	for _, r := range s.reports {
		if r.SurveyID == report.SurveyID && r.Kind == report.Kind {
			return pavement.ErrDuplicateReport
		}
	}

	s.reports[report.ID] = copyReport(report)
	return nil
}

func (s *Store) ReplaceReportContent(ctx context.Context, change pavement.ContentChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[change.ReportID]
	if !ok {
		return pavement.ErrNotFound
	}
	if r.Status != change.From {
		return pavement.ErrStaleStatus
	}

	r.Status = change.To
	r.ObservationIDs = append([]string{}, change.ObservationIDs...)
	r.DailyLog = change.DailyLog
	s.reports[r.ID] = r
	return nil
}

func (s *Store) UpdateReportStatus(ctx context.Context, change pavement.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[change.ReportID]
	if !ok {
		return pavement.ErrNotFound
	}
	if r.Status != change.From {
		return pavement.ErrStaleStatus
	}

	r.Status = change.To
	r.RejectionReason = change.RejectionReason
	r.CancellationReason = change.CancellationReason
	r.ApproverID = change.ApproverID
	s.reports[r.ID] = r
	return nil
}

func (s *Store) DeleteReport(ctx context.Context, id string, from pavement.ReportStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[id]
	if !ok {
		return pavement.ErrNotFound
	}
	if r.Status != from {
		return pavement.ErrStaleStatus
	}

	delete(s.reports, id)
	return nil
}

func (s *Store) IsObservationLocked(ctx context.Context, observationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.observations[observationID]; !ok {
		return false, pavement.ErrNotFound
	}
	return s.isLocked(observationID), nil
}

func (s *Store) UpdateObservationDefect(ctx context.Context, observationID string, defectTypeID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.observations[observationID]
	if !ok {
		return pavement.ErrNotFound
	}
	if s.isLocked(observationID) {
		return pavement.ErrObservationLocked
	}
	if defectTypeID != nil {
		if _, known := s.defectTypes[*defectTypeID]; !known {
			return pavement.ErrUnknownDefectType
		}
	}

	o.DefectTypeID = defectTypeID
	s.observations[o.ID] = o
	return nil
}

func (s *Store) DeleteObservation(ctx context.Context, observationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.observations[observationID]; !ok {
		return pavement.ErrNotFound
	}
	if s.isLocked(observationID) {
		return pavement.ErrObservationLocked
	}

	delete(s.observations, observationID)

	for id, r := range s.reports {
		r.ObservationIDs = without(r.ObservationIDs, observationID)
		s.reports[id] = r
	}
	return nil
}

func (s *Store) DeleteSurvey(ctx context.Context, surveyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.surveys[surveyID]; !ok {
		return pavement.ErrNotFound
	}
	for _, r := range s.reports {
		if r.SurveyID == surveyID {
			return pavement.ErrHasDependents
		}
	}

	delete(s.surveys, surveyID)
	for id, o := range s.observations {
		if o.SurveyID == surveyID {
			delete(s.observations, id)
		}
	}
	return nil
}

func (s *Store) isLocked(observationID string) bool {
	for _, r := range s.reports {
		if r.Status != pavement.StatusApproved {
			continue
		}
		for _, id := range r.ObservationIDs {
			if id == observationID {
				return true
			}
		}
	}
	return false
}

func without(ids []string, id string) []string {
	result := []string{}
	for _, candidate := range ids {
		if candidate != id {
			result = append(result, candidate)
		}
	}
	return result
}

func copyReport(r pavement.Report) pavement.Report {
	r.ObservationIDs = append([]string{}, r.ObservationIDs...)
	return r
}
