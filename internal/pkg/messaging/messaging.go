package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/igg"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/messaging/events"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	"github.com/streadway/amqp"
)

//Publisher is the part of the messaging context that is needed to publish events
type Publisher interface {
	PublishOnTopic(message messaging.TopicMessage) error
}

//StatusNotifier publishes a ReportStatusChanged event for every committed transition
type StatusNotifier struct {
	publisher Publisher
}

//NewStatusNotifier creates a notifier that publishes on the provided messaging context
func NewStatusNotifier(publisher Publisher) *StatusNotifier {
	return &StatusNotifier{publisher: publisher}
}

//ReportStatusChanged publishes the status change. Failures are logged and never undo the transition.
func (n *StatusNotifier) ReportStatusChanged(report pavement.Report, previous pavement.ReportStatus) {
	evt := &events.ReportStatusChanged{
		ReportID:  report.ID,
		SurveyID:  report.SurveyID,
		Kind:      string(report.Kind),
		From:      string(previous),
		To:        string(report.Status),
		Timestamp: report.UpdatedAt.UTC().Format(time.RFC3339),
	}

	err := n.publisher.PublishOnTopic(evt)
	if err != nil {
		log.WithFields(log.Fields{"report": report.ID, "status": report.Status}).Errorf("Failed to publish status change: %s", err.Error())
	}
}

//SurveyReader looks up the survey a report belongs to
type SurveyReader interface {
	GetSurvey(ctx context.Context, id string) (pavement.Survey, error)
}

//SegmentScorer computes the current IGG of a segment
type SegmentScorer interface {
	SegmentIGG(ctx context.Context, segmentID string) (float64, error)
}

//CreateReportStatusChangedReceiver is a closure that logs the recomputed segment IGG whenever
//a photographic report becomes approved
func CreateReportStatusChangedReceiver(surveys SurveyReader, calc SegmentScorer) messaging.TopicMessageHandler {
	return func(msg amqp.Delivery) {
		log.Info("Message received from topic: " + string(msg.Body))

		evt := &events.ReportStatusChanged{}
		err := json.Unmarshal(msg.Body, evt)
		if err != nil {
			log.Error("Failed to unmarshal message")
			return
		}

		if evt.Kind != string(pavement.KindPhotographic) || evt.To != string(pavement.StatusApproved) {
			return
		}

		ctx := context.Background()

		survey, err := surveys.GetSurvey(ctx, evt.SurveyID)
		if err != nil {
			log.Errorf("Unable to find survey %s of approved report %s: %s", evt.SurveyID, evt.ReportID, err.Error())
			return
		}

		value, err := calc.SegmentIGG(ctx, survey.SegmentID)
		if err != nil {
			log.Error(err.Error())
			return
		}

		log.WithFields(log.Fields{
			"segment":   survey.SegmentID,
			"igg":       igg.Round2(value),
			"condition": igg.Classify(value),
		}).Info("Segment IGG updated after approval")
	}
}

//ObservationWriter persists captured observations
type ObservationWriter interface {
	AddObservation(ctx context.Context, o pavement.Observation) error
}

//CreateObservationCapturedReceiver is a closure that takes a datastore and persists incoming observations
func CreateObservationCapturedReceiver(db ObservationWriter) messaging.TopicMessageHandler {
	return func(msg amqp.Delivery) {
		log.Info("Message received from topic: " + string(msg.Body))

		evt := &events.ObservationCaptured{}
		err := json.Unmarshal(msg.Body, evt)
		if err != nil {
			log.Error("Failed to unmarshal message")
			return
		}

		observation, err := toObservation(evt)
		if err != nil {
			log.Error(err.Error())
			return
		}

		err = db.AddObservation(context.Background(), observation)
		if err != nil {
			log.Errorf("Failed to store observation %s: %s", observation.ID, err.Error())
			return
		}
	}
}

func toObservation(evt *events.ObservationCaptured) (pavement.Observation, error) {
	observation := pavement.Observation{
		ID:        evt.ID,
		SurveyID:  evt.SurveyID,
		Latitude:  evt.Latitude,
		Longitude: evt.Longitude,
	}

	if observation.ID == "" {
		observation.ID = uuid.New().String()
	}

	if evt.DefectTypeID != "" {
		defectTypeID := evt.DefectTypeID
		observation.DefectTypeID = &defectTypeID
	}

	ts, err := time.Parse(time.RFC3339, evt.Timestamp)
	if err != nil {
		return observation, err
	}
	observation.CapturedAt = ts.UTC()

	return observation, nil
}
