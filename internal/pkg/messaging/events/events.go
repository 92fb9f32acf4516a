package events

//ReportStatusChanged is an event that notifies that a report moved to another approval status
type ReportStatusChanged struct {
	ReportID  string `json:"reportId"`
	SurveyID  string `json:"surveyId"`
	Kind      string `json:"kind"`
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp"`
}

//TopicName returns the name of the topic that this event will be published on
func (rsc *ReportStatusChanged) TopicName() string {
	return "events-pavementreportstatuschanged"
}

//ContentType returns the content type that this event will be sent as
func (rsc *ReportStatusChanged) ContentType() string {
	return "application/json"
}

//ObservationCaptured is an event sent by field apps when a photograph has been taken during a survey
type ObservationCaptured struct {
	ID           string  `json:"id,omitempty"`
	SurveyID     string  `json:"surveyId"`
	DefectTypeID string  `json:"defectTypeId,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Timestamp    string  `json:"timestamp"`
}

//TopicName returns the name of the topic that this event will be published on
func (oc *ObservationCaptured) TopicName() string {
	return "events-pavementobservationcaptured"
}

//ContentType returns the content type that this event will be sent as
func (oc *ObservationCaptured) ContentType() string {
	return "application/json"
}
