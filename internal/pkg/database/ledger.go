package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/persistence"
)

func (db *myDB) IsObservationLocked(ctx context.Context, observationID string) (bool, error) {
	tx := db.impl.WithContext(ctx)

	if err := exists(tx, &persistence.Observation{}, observationID); err != nil {
		return false, err
	}

	return isLocked(tx, observationID)
}

func (db *myDB) UpdateObservationDefect(ctx context.Context, observationID string, defectTypeID *string) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := unlocked(tx, observationID); err != nil {
			return err
		}

		if err := knownDefectType(tx, defectTypeID); err != nil {
			return err
		}

		return tx.Model(&persistence.Observation{}).
			Where("id = ?", observationID).
			Update("defect_type_id", defectTypeID).Error
	})
}

func (db *myDB) DeleteObservation(ctx context.Context, observationID string) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := unlocked(tx, observationID); err != nil {
			return err
		}

		result := tx.Where("observation_id = ?", observationID).Delete(&persistence.ReportObservation{})
		if result.Error != nil {
			return result.Error
		}

		return tx.Where("id = ?", observationID).Delete(&persistence.Observation{}).Error
	})
}

func (db *myDB) DeleteSurvey(ctx context.Context, surveyID string) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRow(tx, &persistence.Survey{}, surveyID); err != nil {
			return err
		}

		var count int64
		result := tx.Model(&persistence.Report{}).Where("survey_id = ?", surveyID).Count(&count)
		if result.Error != nil {
			return result.Error
		}
		if count > 0 {
			return pavement.ErrHasDependents
		}

		result = tx.Where("survey_id = ?", surveyID).Delete(&persistence.Observation{})
		if result.Error != nil {
			return result.Error
		}

		return tx.Where("id = ?", surveyID).Delete(&persistence.Survey{}).Error
	})
}

//unlocked locks the observation row and fails unless no APPROVED report links it.
//Approvals lock the same rows, see lockLinkedObservations.
func unlocked(tx *gorm.DB, observationID string) error {
	if err := lockRow(tx, &persistence.Observation{}, observationID); err != nil {
		return err
	}

	locked, err := isLocked(tx, observationID)
	if err != nil {
		return err
	}
	if locked {
		return pavement.ErrObservationLocked
	}

	return nil
}

//isLocked reports whether an APPROVED report links the observation
func isLocked(tx *gorm.DB, observationID string) (bool, error) {
	var count int64

	result := tx.Model(&persistence.ReportObservation{}).
		Joins("JOIN reports ON reports.id = report_observations.report_id").
		Where("report_observations.observation_id = ? AND reports.status = ?", observationID, string(pavement.StatusApproved)).
		Count(&count)

	if result.Error != nil {
		return false, result.Error
	}

	return count > 0, nil
}

//lockLinkedObservations takes row locks on every observation the report links
func lockLinkedObservations(tx *gorm.DB, reportID string) error {
	ids := []string{}

	result := tx.Model(&persistence.ReportObservation{}).Where("report_id = ?", reportID).Pluck("observation_id", &ids)
	if result.Error != nil || len(ids) == 0 {
		return result.Error
	}

	locked := []string{}
	return forUpdate(tx).Model(&persistence.Observation{}).Where("id IN ?", ids).Pluck("id", &locked).Error
}

//lockRow takes a row lock on the record with the given id, or returns ErrNotFound
func lockRow(tx *gorm.DB, model interface{}, id string) error {
	ids := []string{}

	result := forUpdate(tx).Model(model).Where("id = ?", id).Pluck("id", &ids)
	if result.Error != nil {
		return result.Error
	}
	if len(ids) == 0 {
		return pavement.ErrNotFound
	}
	return nil
}

//forUpdate adds a FOR UPDATE clause on postgres. sqlite runs one transaction at a time
//on its single connection and has no row locks.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

//knownDefectType fails with ErrUnknownDefectType unless the id is nil or in the catalog
func knownDefectType(tx *gorm.DB, defectTypeID *string) error {
	if defectTypeID == nil {
		return nil
	}

	err := exists(tx, &persistence.DefectType{}, *defectTypeID)
	if err == pavement.ErrNotFound {
		return pavement.ErrUnknownDefectType
	}
	return err
}
