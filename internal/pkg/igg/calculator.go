package igg

import (
	"context"
	goerrors "errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/errors"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/stakes"
)

//Source is the read-only data the calculator consumes
type Source interface {
	GetRoad(ctx context.Context, id string) (pavement.Road, error)
	GetSegment(ctx context.Context, id string) (pavement.Segment, error)
	ListSurveys(ctx context.Context, segmentID string) ([]pavement.Survey, error)
	ListReports(ctx context.Context, filter pavement.ReportFilter) ([]pavement.Report, error)
	ListObservations(ctx context.Context, filter pavement.ObservationFilter) ([]pavement.Observation, error)
	ListDefectTypes(ctx context.Context) ([]pavement.DefectType, error)
}

//Calculator computes IGG values from the current stored state. Nothing is cached.
type Calculator struct {
	source Source
}

//NewCalculator creates a calculator reading from the provided source
func NewCalculator(source Source) *Calculator {
	return &Calculator{source: source}
}

//Point is one value of an IGG time series
type Point struct {
	Date time.Time `json:"date"`
	IGG  float64   `json:"igg"`
}

//SelectedSurvey records which survey represented a segment in a road rollup
type SelectedSurvey struct {
	SegmentID string    `json:"segmentId"`
	SurveyID  string    `json:"surveyId"`
	Date      time.Time `json:"date"`
}

//Rollup is a road level IGG with its reporting tables
type Rollup struct {
	RoadID           string            `json:"roadId"`
	IGG              float64           `json:"igg"`
	Quantitative     []QuantitativeRow `json:"quantitativeTable"`
	Memoir           []MemoirRow       `json:"memoirTable"`
	TotalStakes      int               `json:"totalStakes"`
	TotalDefectCount int               `json:"totalDefectCount"`
	Surveys          []SelectedSurvey  `json:"surveys"`
}

//SegmentIGG computes the IGG of the latest eligible survey of a segment. A segment
//without an eligible survey has an IGG of zero.
func (c *Calculator) SegmentIGG(ctx context.Context, segmentID string) (float64, error) {
	segment, err := c.source.GetSegment(ctx, segmentID)
	if err != nil {
		return 0, c.translate("compute segment igg", "segment", segmentID, err)
	}

	surveys, links, err := c.eligibleSurveys(ctx, segmentID)
	if err != nil {
		return 0, err
	}

	latest, ok := Latest(surveys)
	if !ok {
		return 0, nil
	}

	catalog, err := c.catalog(ctx)
	if err != nil {
		return 0, err
	}

	result, err := c.surveyResult(ctx, latest, links[latest.ID], catalog, stakes.Count(segment.KmStart, segment.KmEnd))
	if err != nil {
		return 0, err
	}

	return result.IGG, nil
}

//History computes one IGG point per eligible survey of a segment, oldest first,
//each rounded to two decimals
func (c *Calculator) History(ctx context.Context, segmentID string) ([]Point, error) {
	segment, err := c.source.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, c.translate("compute igg history", "segment", segmentID, err)
	}

	surveys, links, err := c.eligibleSurveys(ctx, segmentID)
	if err != nil {
		return nil, err
	}

	points := []Point{}
	if len(surveys) == 0 {
		return points, nil
	}

	catalog, err := c.catalog(ctx)
	if err != nil {
		return nil, err
	}

	n := stakes.Count(segment.KmStart, segment.KmEnd)

	for _, survey := range surveys {
		result, err := c.surveyResult(ctx, survey, links[survey.ID], catalog, n)
		if err != nil {
			return nil, err
		}
		points = append(points, Point{Date: survey.Date, IGG: Round2(result.IGG)})
	}

	return points, nil
}

//RoadIGG pools the latest eligible survey of every segment and divides by the
//stake count of the whole road
func (c *Calculator) RoadIGG(ctx context.Context, roadID string) (float64, error) {
	rollup, err := c.RoadSummary(ctx, roadID)
	if err != nil {
		return 0, err
	}
	return rollup.IGG, nil
}

//RoadSummary is RoadIGG together with its reporting tables
func (c *Calculator) RoadSummary(ctx context.Context, roadID string) (Rollup, error) {
	return c.rollup(ctx, "compute road igg", roadID, Latest)
}

//RoadAsOf pools, for every segment, the eligible survey closest to the reference date
//and divides by the stake count of the whole road
func (c *Calculator) RoadAsOf(ctx context.Context, roadID string, reference time.Time) (Rollup, error) {
	return c.rollup(ctx, "compute road igg as of date", roadID, func(surveys []pavement.Survey) (pavement.Survey, bool) {
		return Nearest(surveys, reference)
	})
}

func (c *Calculator) rollup(ctx context.Context, operation, roadID string, pick func([]pavement.Survey) (pavement.Survey, bool)) (Rollup, error) {
	road, err := c.source.GetRoad(ctx, roadID)
	if err != nil {
		return Rollup{}, c.translate(operation, "road", roadID, err)
	}

	catalog, err := c.catalog(ctx)
	if err != nil {
		return Rollup{}, err
	}

	selected := []SelectedSurvey{}
	pooled := []pavement.Observation{}

	for _, segmentID := range road.SegmentIDs {
		surveys, links, err := c.eligibleSurveys(ctx, segmentID)
		if err != nil {
			return Rollup{}, err
		}

		survey, ok := pick(surveys)
		if !ok {
			continue
		}

		observations, err := c.defectObservations(ctx, survey, links[survey.ID])
		if err != nil {
			return Rollup{}, err
		}

		selected = append(selected, SelectedSurvey{SegmentID: segmentID, SurveyID: survey.ID, Date: survey.Date})
		pooled = append(pooled, observations...)
	}

	frequencies, err := Group(pooled, catalog)
	if err != nil {
		return Rollup{}, c.translate(operation, "road", roadID, err)
	}

	result := Compute(frequencies, stakes.RoadCount(road.LengthKm))

	return Rollup{
		RoadID:           road.ID,
		IGG:              result.IGG,
		Quantitative:     QuantitativeTable(result.Terms),
		Memoir:           MemoirTable(result.Terms),
		TotalStakes:      result.Stakes,
		TotalDefectCount: result.DefectCount(),
		Surveys:          selected,
	}, nil
}

//approvedLinks holds, per survey, the observations linked by its APPROVED photographic report
type approvedLinks map[string]map[string]bool

//eligibleSurveys returns the surveys of a segment with an APPROVED photographic
//report, oldest first, together with the observations each approved report links
func (c *Calculator) eligibleSurveys(ctx context.Context, segmentID string) ([]pavement.Survey, approvedLinks, error) {
	surveys, err := c.source.ListSurveys(ctx, segmentID)
	if err != nil {
		return nil, nil, c.translate("list surveys", "segment", segmentID, err)
	}

	links := approvedLinks{}

	if len(surveys) == 0 {
		return []pavement.Survey{}, links, nil
	}

	ids := make([]string, 0, len(surveys))
	for _, s := range surveys {
		ids = append(ids, s.ID)
	}

	reports, err := c.source.ListReports(ctx, pavement.ReportFilter{
		SurveyIDs: ids,
		Kind:      pavement.KindPhotographic,
		Status:    pavement.StatusApproved,
	})
	if err != nil {
		return nil, nil, c.translate("list approved reports", "segment", segmentID, err)
	}

	for _, r := range reports {
		linked := map[string]bool{}
		for _, id := range r.ObservationIDs {
			linked[id] = true
		}
		links[r.SurveyID] = linked
	}

	eligible := []pavement.Survey{}
	for _, s := range surveys {
		if _, ok := links[s.ID]; ok {
			eligible = append(eligible, s)
		}
	}

	SortSurveys(eligible)

	return eligible, links, nil
}

func (c *Calculator) surveyResult(ctx context.Context, survey pavement.Survey, linked map[string]bool, catalog map[string]pavement.DefectType, n int) (Result, error) {
	observations, err := c.defectObservations(ctx, survey, linked)
	if err != nil {
		return Result{}, err
	}

	frequencies, err := Group(observations, catalog)
	if err != nil {
		return Result{}, c.translate("group observations", "survey", survey.ID, err)
	}

	return Compute(frequencies, n), nil
}

//defectObservations returns the defect tagged observations of a survey that its approved
//report links. Observations the report left out never reach the calculation.
func (c *Calculator) defectObservations(ctx context.Context, survey pavement.Survey, linked map[string]bool) ([]pavement.Observation, error) {
	observations, err := c.source.ListObservations(ctx, pavement.ObservationFilter{
		SurveyID:      survey.ID,
		SegmentID:     survey.SegmentID,
		HasDefectType: true,
	})
	if err != nil {
		return nil, c.translate("list observations", "survey", survey.ID, err)
	}

	approved := make([]pavement.Observation, 0, len(observations))
	for _, o := range observations {
		if linked[o.ID] {
			approved = append(approved, o)
		}
	}
	return approved, nil
}

func (c *Calculator) catalog(ctx context.Context) (map[string]pavement.DefectType, error) {
	types, err := c.source.ListDefectTypes(ctx)
	if err != nil {
		return nil, c.translate("list defect types", "catalog", "", err)
	}

	catalog := make(map[string]pavement.DefectType, len(types))
	for _, dt := range types {
		catalog[dt.ID] = dt
	}
	return catalog, nil
}

func (c *Calculator) translate(operation, entity, id string, err error) error {
	var typed *errors.Error

	switch {
	case goerrors.As(err, &typed):
		return typed
	case goerrors.Is(err, pavement.ErrNotFound):
		return errors.NotFound(entity, id)
	}

	log.WithFields(log.Fields{"operation": operation, entity: id}).Errorf("storage failure: %s", err.Error())

	return errors.Internal(operation)
}
