package lifecycle

import (
	"context"

	log "github.com/sirupsen/logrus"
)

//IsObservationLocked returns true if the observation is linked to an APPROVED report.
//Photo management consults it before allowing an edit or a removal.
func (s *Service) IsObservationLocked(ctx context.Context, observationID string) (bool, error) {
	locked, err := s.store.IsObservationLocked(ctx, observationID)
	if err != nil {
		return false, s.translate("check observation lock", "observation", observationID, err)
	}
	return locked, nil
}

//UpdateObservationDefect changes the defect type of an unlocked observation. A nil or
//empty defect type clears it.
func (s *Service) UpdateObservationDefect(ctx context.Context, observationID string, defectTypeID *string) error {
	if defectTypeID != nil && *defectTypeID == "" {
		defectTypeID = nil
	}

	if err := s.store.UpdateObservationDefect(ctx, observationID, defectTypeID); err != nil {
		return s.translate("update observation", "observation", observationID, err)
	}
	return nil
}

//DeleteObservation removes an unlocked observation
func (s *Service) DeleteObservation(ctx context.Context, observationID string) error {
	if err := s.store.DeleteObservation(ctx, observationID); err != nil {
		return s.translate("delete observation", "observation", observationID, err)
	}

	log.WithField("observation", observationID).Info("observation deleted")

	return nil
}

//DeleteSurvey removes a survey that no report references
func (s *Service) DeleteSurvey(ctx context.Context, surveyID string) error {
	if err := s.store.DeleteSurvey(ctx, surveyID); err != nil {
		return s.translate("delete survey", "survey", surveyID, err)
	}

	log.WithField("survey", surveyID).Info("survey deleted")

	return nil
}
