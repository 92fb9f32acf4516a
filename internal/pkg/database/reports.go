package database

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/persistence"
)

func (db *myDB) GetReport(ctx context.Context, id string) (pavement.Report, error) {
	row := &persistence.Report{}
	result := db.impl.WithContext(ctx).Where("id = ?", id).First(row)
	if result.Error != nil {
		return pavement.Report{}, notFoundOr(result.Error)
	}

	reports, err := db.withLinks(db.impl.WithContext(ctx), []persistence.Report{*row})
	if err != nil {
		return pavement.Report{}, err
	}

	return reports[0], nil
}

func (db *myDB) ListReports(ctx context.Context, filter pavement.ReportFilter) ([]pavement.Report, error) {
	query := db.impl.WithContext(ctx).Model(&persistence.Report{})

	if len(filter.SurveyIDs) > 0 {
		query = query.Where("survey_id IN ?", filter.SurveyIDs)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", string(filter.Kind))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}

	rows := []persistence.Report{}
	if result := query.Order("id").Find(&rows); result.Error != nil {
		return nil, result.Error
	}

	return db.withLinks(db.impl.WithContext(ctx), rows)
}

func (db *myDB) withLinks(tx *gorm.DB, rows []persistence.Report) ([]pavement.Report, error) {
	reports := make([]pavement.Report, 0, len(rows))
	if len(rows) == 0 {
		return reports, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	links := []persistence.ReportObservation{}
	result := tx.Where("report_id IN ?", ids).Order("report_id").Order("position").Find(&links)
	if result.Error != nil {
		return nil, result.Error
	}

	linked := map[string][]string{}
	for _, link := range links {
		linked[link.ReportID] = append(linked[link.ReportID], link.ObservationID)
	}

	for idx := range rows {
		reports = append(reports, toReport(&rows[idx], linked[rows[idx].ID]))
	}

	return reports, nil
}

func (db *myDB) CreateReport(ctx context.Context, report pavement.Report) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRow(tx, &persistence.Survey{}, report.SurveyID); err != nil {
			return err
		}

		var count int64
		result := tx.Model(&persistence.Report{}).
			Where("survey_id = ? AND kind = ?", report.SurveyID, string(report.Kind)).
			Count(&count)
		if result.Error != nil {
			return result.Error
		}
		if count > 0 {
			return pavement.ErrDuplicateReport
		}

		row := fromReport(report)
		if err := tx.Create(row).Error; err != nil {
			if isUniqueViolation(err) {
				return pavement.ErrDuplicateReport
			}
			return err
		}

		return insertLinks(tx, report.ID, report.ObservationIDs)
	})
}

func (db *myDB) ReplaceReportContent(ctx context.Context, change pavement.ContentChange) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		daily := dailyColumns(change.DailyLog)
		daily["status"] = string(change.To)

		err := conditionalUpdate(tx, change.ReportID, change.From, daily)
		if err != nil {
			return err
		}

		result := tx.Where("report_id = ?", change.ReportID).Delete(&persistence.ReportObservation{})
		if result.Error != nil {
			return result.Error
		}

		return insertLinks(tx, change.ReportID, change.ObservationIDs)
	})
}

func (db *myDB) UpdateReportStatus(ctx context.Context, change pavement.StatusChange) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := conditionalUpdate(tx, change.ReportID, change.From, map[string]interface{}{
			"status":              string(change.To),
			"rejection_reason":    change.RejectionReason,
			"cancellation_reason": change.CancellationReason,
			"approver_id":         change.ApproverID,
		})
		if err != nil || change.To != pavement.StatusApproved {
			return err
		}

		return lockLinkedObservations(tx, change.ReportID)
	})
}

func (db *myDB) DeleteReport(ctx context.Context, id string, from pavement.ReportStatus) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND status = ?", id, string(from)).Delete(&persistence.Report{})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return staleOrMissing(tx, id)
		}

		return tx.Where("report_id = ?", id).Delete(&persistence.ReportObservation{}).Error
	})
}

//conditionalUpdate writes the columns only if the report still has the expected status
func conditionalUpdate(tx *gorm.DB, reportID string, from pavement.ReportStatus, columns map[string]interface{}) error {
	columns["updated_at"] = time.Now().UTC()

	result := tx.Model(&persistence.Report{}).
		Where("id = ? AND status = ?", reportID, string(from)).
		Updates(columns)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return staleOrMissing(tx, reportID)
	}

	return nil
}

func staleOrMissing(tx *gorm.DB, reportID string) error {
	if err := exists(tx, &persistence.Report{}, reportID); err != nil {
		return err
	}
	return pavement.ErrStaleStatus
}

//isUniqueViolation recognizes unique index violations of postgres (SQLSTATE 23505) and sqlite
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func exists(tx *gorm.DB, model interface{}, id string) error {
	var count int64
	result := tx.Model(model).Where("id = ?", id).Count(&count)
	if result.Error != nil {
		return result.Error
	}
	if count == 0 {
		return pavement.ErrNotFound
	}
	return nil
}

func insertLinks(tx *gorm.DB, reportID string, observationIDs []string) error {
	if len(observationIDs) == 0 {
		return nil
	}

	links := make([]persistence.ReportObservation, 0, len(observationIDs))
	for idx, observationID := range observationIDs {
		links = append(links, persistence.ReportObservation{ReportID: reportID, ObservationID: observationID, Position: idx})
	}

	return tx.Create(&links).Error
}

func dailyColumns(log *pavement.DailyServiceLog) map[string]interface{} {
	if log == nil {
		return map[string]interface{}{
			"has_daily_log":   false,
			"daily_weather":   "",
			"daily_shift":     "",
			"daily_crew_size": 0,
			"daily_notes":     "",
		}
	}

	return map[string]interface{}{
		"has_daily_log":   true,
		"daily_weather":   log.Weather,
		"daily_shift":     log.Shift,
		"daily_crew_size": log.CrewSize,
		"daily_notes":     log.Notes,
	}
}

func fromReport(r pavement.Report) *persistence.Report {
	row := &persistence.Report{
		ID:                 r.ID,
		SurveyID:           r.SurveyID,
		Kind:               string(r.Kind),
		Status:             string(r.Status),
		CreatedBy:          r.CreatedBy,
		RejectionReason:    r.RejectionReason,
		CancellationReason: r.CancellationReason,
		ApproverID:         r.ApproverID,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}

	if r.DailyLog != nil {
		row.HasDailyLog = true
		row.DailyLog = persistence.DailyLog{
			Weather:  r.DailyLog.Weather,
			Shift:    r.DailyLog.Shift,
			CrewSize: r.DailyLog.CrewSize,
			Notes:    r.DailyLog.Notes,
		}
	}

	return row
}

func toReport(row *persistence.Report, observationIDs []string) pavement.Report {
	if observationIDs == nil {
		observationIDs = []string{}
	}

	r := pavement.Report{
		ID:                 row.ID,
		SurveyID:           row.SurveyID,
		Kind:               pavement.ReportKind(row.Kind),
		Status:             pavement.ReportStatus(row.Status),
		CreatedBy:          row.CreatedBy,
		RejectionReason:    row.RejectionReason,
		CancellationReason: row.CancellationReason,
		ApproverID:         row.ApproverID,
		ObservationIDs:     observationIDs,
		CreatedAt:          row.CreatedAt.UTC(),
		UpdatedAt:          row.UpdatedAt.UTC(),
	}

	if row.HasDailyLog {
		r.DailyLog = &pavement.DailyServiceLog{
			Weather:  row.DailyLog.Weather,
			Shift:    row.DailyLog.Shift,
			CrewSize: row.DailyLog.CrewSize,
			Notes:    row.DailyLog.Notes,
		}
	}

	return r
}
