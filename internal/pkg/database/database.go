package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/igg"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/lifecycle"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/persistence"
)

//Datastore is an interface that is used to inject the database into different handlers to improve testability
type Datastore interface {
	lifecycle.Store
	igg.Source

	AddRoad(ctx context.Context, road pavement.Road) error
	AddSegment(ctx context.Context, segment pavement.Segment) error
	AddSurvey(ctx context.Context, survey pavement.Survey) error
	AddDefectType(ctx context.Context, dt pavement.DefectType) error
	AddObservation(ctx context.Context, o pavement.Observation) error

	GetRoadCount() int
	ListSegments(ctx context.Context) ([]pavement.Segment, error)
}

//ConnectorFunc is used to inject a database connection method into NewDatabaseConnection
type ConnectorFunc func() (*gorm.DB, error)

//PostgresSettings holds the connection parameters of a postgres server
type PostgresSettings struct {
	Host     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

//NewPostgreSQLConnector opens a connection to a postgresql database
func NewPostgreSQLConnector(settings PostgresSettings) ConnectorFunc {
	dsn := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s",
		settings.Host, settings.User, settings.Name, settings.SSLMode, settings.Password)

	return func() (*gorm.DB, error) {
		for {
			log.Infof("Connecting to database host %s ...", settings.Host)
			db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
				Logger: logger.Default.LogMode(logger.Silent),
			})
			if err != nil {
				log.Errorf("Failed to connect to database %s \n", err)
				time.Sleep(3 * time.Second)
			} else {
				return db, nil
			}
		}
	}
}

//NewSQLiteConnector opens a connection to a sqlite database at the provided path.
//An empty path opens a shared in-memory database.
func NewSQLiteConnector(path string) ConnectorFunc {
	if path == "" {
		path = "file::memory:?cache=shared"
	}

	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})

		if err == nil {
			sqlDB, dberr := db.DB()
			if dberr != nil {
				return nil, dberr
			}
			//single writer connection
			sqlDB.SetMaxOpenConns(1)
		}

		return db, err
	}
}

type myDB struct {
	impl *gorm.DB
}

//NewDatabaseConnection initializes a new connection to the database and wraps it in a Datastore.
//Roads and segments are seeded from datafile when it is not nil.
func NewDatabaseConnection(connect ConnectorFunc, datafile io.Reader) (Datastore, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(
		&persistence.Road{},
		&persistence.RoadSegment{},
		&persistence.DefectType{},
		&persistence.Survey{},
		&persistence.Observation{},
		&persistence.Report{},
		&persistence.ReportObservation{},
	)
	if err != nil {
		return nil, err
	}

	db := &myDB{impl: impl}

	if datafile != nil {
		err = db.initFromReader(datafile)
		if err != nil {
			return nil, err
		}

		log.Infof("Datastore seeded with %d roads.", db.GetRoadCount())
	}

	return db, nil
}

func (db *myDB) AddRoad(ctx context.Context, road pavement.Road) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertRoad(tx, road.ID, road.LengthKm)
	})
}

func upsertRoad(tx *gorm.DB, roadID string, lengthKm float64) error {
	existing := &persistence.Road{}
	result := tx.Where("rid = ?", roadID).First(existing)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return tx.Create(&persistence.Road{RID: roadID, LengthKm: lengthKm}).Error
	} else if result.Error != nil {
		return result.Error
	}

	return tx.Model(existing).Update("length_km", lengthKm).Error
}

func (db *myDB) AddSegment(ctx context.Context, segment pavement.Segment) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return addSegment(tx, segment)
	})
}

func addSegment(tx *gorm.DB, segment pavement.Segment) error {
	road := &persistence.Road{}
	result := tx.Where("rid = ?", segment.RoadID).First(road)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return pavement.ErrNotFound
	} else if result.Error != nil {
		return result.Error
	}

	existing := &persistence.RoadSegment{}
	result = tx.Where("segment_id = ?", segment.ID).First(existing)
	if result.Error == nil {
		return tx.Model(existing).Updates(map[string]interface{}{
			"road_id":  road.ID,
			"km_start": segment.KmStart,
			"km_end":   segment.KmEnd,
		}).Error
	} else if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}

	return tx.Create(&persistence.RoadSegment{
		SegmentID: segment.ID,
		RoadID:    road.ID,
		KmStart:   segment.KmStart,
		KmEnd:     segment.KmEnd,
	}).Error
}

func (db *myDB) AddSurvey(ctx context.Context, survey pavement.Survey) error {
	return db.impl.WithContext(ctx).Create(&persistence.Survey{
		ID:          survey.ID,
		SegmentID:   survey.SegmentID,
		InspectorID: survey.InspectorID,
		Date:        survey.Date.UTC(),
	}).Error
}

func (db *myDB) AddDefectType(ctx context.Context, dt pavement.DefectType) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertDefectType(tx, dt)
	})
}

func upsertDefectType(tx *gorm.DB, dt pavement.DefectType) error {
	existing := &persistence.DefectType{}
	result := tx.Where("code = ?", dt.Code).First(existing)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return tx.Create(&persistence.DefectType{ID: dt.ID, Code: dt.Code, Name: dt.Name, Weight: dt.Weight}).Error
	} else if result.Error != nil {
		return result.Error
	}

	return tx.Model(existing).Updates(map[string]interface{}{"name": dt.Name, "weight": dt.Weight}).Error
}

func (db *myDB) AddObservation(ctx context.Context, o pavement.Observation) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		survey := &persistence.Survey{}
		result := tx.Where("id = ?", o.SurveyID).First(survey)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return pavement.ErrNotFound
		} else if result.Error != nil {
			return result.Error
		}

		if o.SegmentID == "" {
			o.SegmentID = survey.SegmentID
		}

		if err := knownDefectType(tx, o.DefectTypeID); err != nil {
			return err
		}

		return tx.Create(&persistence.Observation{
			ID:           o.ID,
			SurveyID:     o.SurveyID,
			SegmentID:    o.SegmentID,
			DefectTypeID: o.DefectTypeID,
			Latitude:     o.Latitude,
			Longitude:    o.Longitude,
			CapturedAt:   o.CapturedAt.UTC(),
		}).Error
	})
}

func (db *myDB) GetRoadCount() int {
	var count int64
	db.impl.Model(&persistence.Road{}).Count(&count)
	return int(count)
}

func (db *myDB) GetRoad(ctx context.Context, id string) (pavement.Road, error) {
	road := &persistence.Road{}
	result := db.impl.WithContext(ctx).Preload("RoadSegments", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("km_start")
	}).Where("rid = ?", id).First(road)

	if result.Error != nil {
		return pavement.Road{}, notFoundOr(result.Error)
	}

	segmentIDs := []string{}
	for _, segment := range road.RoadSegments {
		segmentIDs = append(segmentIDs, segment.SegmentID)
	}

	return pavement.Road{ID: road.RID, LengthKm: road.LengthKm, SegmentIDs: segmentIDs}, nil
}

func (db *myDB) GetSegment(ctx context.Context, id string) (pavement.Segment, error) {
	segment := &persistence.RoadSegment{}
	result := db.impl.WithContext(ctx).Preload("Road").Where("segment_id = ?", id).First(segment)

	if result.Error != nil {
		return pavement.Segment{}, notFoundOr(result.Error)
	}

	return toSegment(segment), nil
}

func (db *myDB) ListSegments(ctx context.Context) ([]pavement.Segment, error) {
	rows := []persistence.RoadSegment{}
	result := db.impl.WithContext(ctx).Preload("Road").Order("road_id").Order("km_start").Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	segments := make([]pavement.Segment, 0, len(rows))
	for idx := range rows {
		segments = append(segments, toSegment(&rows[idx]))
	}
	return segments, nil
}

func (db *myDB) GetSurvey(ctx context.Context, id string) (pavement.Survey, error) {
	survey := &persistence.Survey{}
	result := db.impl.WithContext(ctx).Where("id = ?", id).First(survey)
	if result.Error != nil {
		return pavement.Survey{}, notFoundOr(result.Error)
	}
	return toSurvey(survey), nil
}

func (db *myDB) ListSurveys(ctx context.Context, segmentID string) ([]pavement.Survey, error) {
	rows := []persistence.Survey{}
	result := db.impl.WithContext(ctx).Where("segment_id = ?", segmentID).Order("date").Order("id").Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	surveys := make([]pavement.Survey, 0, len(rows))
	for idx := range rows {
		surveys = append(surveys, toSurvey(&rows[idx]))
	}
	return surveys, nil
}

func (db *myDB) ListDefectTypes(ctx context.Context) ([]pavement.DefectType, error) {
	rows := []persistence.DefectType{}
	result := db.impl.WithContext(ctx).Order("id").Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	types := make([]pavement.DefectType, 0, len(rows))
	for _, row := range rows {
		types = append(types, pavement.DefectType{ID: row.ID, Code: row.Code, Name: row.Name, Weight: row.Weight})
	}
	return types, nil
}

func (db *myDB) ListObservations(ctx context.Context, filter pavement.ObservationFilter) ([]pavement.Observation, error) {
	query := db.impl.WithContext(ctx).Model(&persistence.Observation{})

	if filter.SurveyID != "" {
		query = query.Where("survey_id = ?", filter.SurveyID)
	}
	if filter.SegmentID != "" {
		query = query.Where("segment_id = ?", filter.SegmentID)
	}
	if filter.HasDefectType {
		query = query.Where("defect_type_id IS NOT NULL AND defect_type_id <> ''")
	}

	rows := []persistence.Observation{}
	if result := query.Order("id").Find(&rows); result.Error != nil {
		return nil, result.Error
	}

	observations := make([]pavement.Observation, 0, len(rows))
	for _, row := range rows {
		observations = append(observations, pavement.Observation{
			ID:           row.ID,
			SurveyID:     row.SurveyID,
			SegmentID:    row.SegmentID,
			DefectTypeID: row.DefectTypeID,
			Latitude:     row.Latitude,
			Longitude:    row.Longitude,
			CapturedAt:   row.CapturedAt,
		})
	}
	return observations, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pavement.ErrNotFound
	}
	return err
}

func toSegment(segment *persistence.RoadSegment) pavement.Segment {
	roadID := ""
	if segment.Road != nil {
		roadID = segment.Road.RID
	}
	return pavement.Segment{ID: segment.SegmentID, RoadID: roadID, KmStart: segment.KmStart, KmEnd: segment.KmEnd}
}

func toSurvey(survey *persistence.Survey) pavement.Survey {
	return pavement.Survey{
		ID:          survey.ID,
		SegmentID:   survey.SegmentID,
		InspectorID: survey.InspectorID,
		Date:        survey.Date.UTC(),
	}
}
