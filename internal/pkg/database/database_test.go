package database_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	db "github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/database"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/igg"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/lifecycle"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
)

func TestMain(m *testing.M) {
	log.SetFormatter(&log.JSONFormatter{})
	os.Exit(m.Run())
}

const seedData = "BR-316;2.0;br316-1;0;0.5\nBR-316;2.0;br316-2;0.5;2.0\n"

func newTestDatastore(t *testing.T, seed string) db.Datastore {
	var datafile io.Reader
	if seed != "" {
		datafile = strings.NewReader(seed)
	}

	connector := db.NewSQLiteConnector(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))

	datastore, err := db.NewDatabaseConnection(connector, datafile)
	if err != nil {
		t.Fatalf("Failed to create datastore: %s", err.Error())
	}

	return datastore
}

func strptr(s string) *string { return &s }

func TestSeedSingleRoad(t *testing.T) {
	datastore := newTestDatastore(t, seedData)

	if datastore.GetRoadCount() != 1 {
		t.Error("Unexpected number of roads in datastore after test.", 1, "!=", datastore.GetRoadCount())
	}

	road, err := datastore.GetRoad(context.Background(), "BR-316")
	if err != nil {
		t.Fatal("Unable to find expected road from id:", err.Error())
	}

	if road.LengthKm != 2.0 || len(road.SegmentIDs) != 2 || road.SegmentIDs[0] != "br316-1" {
		t.Errorf("Seeded road %v did not match expectations.", road)
	}
}

func TestSeedSkipsMalformedRecords(t *testing.T) {
	seed := "# road;length;segment;start;end\nBR-101;1.0;br101-1;0;1\nBR-101;1.0;br101-2;0.5\nBR-101;1.0;br101-3;1.0;0.8\nBR-101;x;br101-4;0;1\n"
	datastore := newTestDatastore(t, seed)

	segments, _ := datastore.ListSegments(context.Background())
	if len(segments) != 1 {
		t.Errorf("Expected a single valid segment to be seeded, found %d.", len(segments))
	}
}

func TestGetSegment(t *testing.T) {
	datastore := newTestDatastore(t, seedData)

	segment, err := datastore.GetSegment(context.Background(), "br316-2")
	if err != nil {
		t.Fatalf("Unable to find seeded segment: %s", err.Error())
	}

	if segment.RoadID != "BR-316" || segment.KmStart != 0.5 || segment.KmEnd != 2.0 {
		t.Errorf("Segment %v did not match expectations.", segment)
	}

	_, err = datastore.GetSegment(context.Background(), "nowhere")
	if !errors.Is(err, pavement.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an unknown segment, got %v.", err)
	}
}

func TestSeedDefectCatalog(t *testing.T) {
	datastore := newTestDatastore(t, "")
	catalog := "- code: R\n  name: Patch\n  weight: 0.9\n- id: crack\n  code: FC-2\n  name: Crack\n  weight: 1.0\n"

	count, err := db.SeedDefectCatalog(context.Background(), datastore, strings.NewReader(catalog))
	if err != nil || count != 2 {
		t.Fatalf("Failed to seed defect catalog: %v (%d)", err, count)
	}

	types, _ := datastore.ListDefectTypes(context.Background())
	if len(types) != 2 || types[0].ID != "R" || types[1].ID != "crack" || types[1].Weight != 1.0 {
		t.Errorf("Defect catalog %v did not match expectations.", types)
	}

	_, err = db.SeedDefectCatalog(context.Background(), datastore, strings.NewReader("- code: X\n  name: Broken\n  weight: 0\n"))
	if err == nil {
		t.Error("Expected a catalog entry without a positive weight to be rejected.")
	}
}

func newSurveyedDatastore(t *testing.T) db.Datastore {
	ctx := context.Background()
	datastore := newTestDatastore(t, seedData)

	datastore.AddDefectType(ctx, pavement.DefectType{ID: "patch", Code: "R", Name: "Patch", Weight: 0.9})
	datastore.AddSurvey(ctx, pavement.Survey{ID: "srv-1", SegmentID: "br316-1", InspectorID: "insp-1", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)})

	for i := 1; i <= 5; i++ {
		err := datastore.AddObservation(ctx, pavement.Observation{ID: fmt.Sprintf("obs-%d", i), SurveyID: "srv-1", DefectTypeID: strptr("patch")})
		if err != nil {
			t.Fatalf("Failed to add observation: %s", err.Error())
		}
	}

	datastore.AddObservation(ctx, pavement.Observation{ID: "obs-clean", SurveyID: "srv-1"})

	return datastore
}

func TestCreateAndGetReport(t *testing.T) {
	ctx := context.Background()
	datastore := newSurveyedDatastore(t)

	report := pavement.Report{
		ID:             "rep-1",
		SurveyID:       "srv-1",
		Kind:           pavement.KindPhotographic,
		Status:         pavement.StatusPending,
		CreatedBy:      "insp-1",
		ObservationIDs: []string{"obs-3", "obs-1"},
	}

	if err := datastore.CreateReport(ctx, report); err != nil {
		t.Fatalf("Failed to create report: %s", err.Error())
	}

	stored, err := datastore.GetReport(ctx, "rep-1")
	if err != nil {
		t.Fatalf("Failed to read report back: %s", err.Error())
	}

	if stored.Status != pavement.StatusPending || len(stored.ObservationIDs) != 2 || stored.ObservationIDs[0] != "obs-3" {
		t.Errorf("Stored report %v did not match expectations.", stored)
	}

	report.ID = "rep-2"
	if err := datastore.CreateReport(ctx, report); !errors.Is(err, pavement.ErrDuplicateReport) {
		t.Errorf("Expected a second photographic report to be refused, got %v.", err)
	}
}

func TestDailyServiceLogIsStoredInColumns(t *testing.T) {
	ctx := context.Background()
	datastore := newSurveyedDatastore(t)

	daily := &pavement.DailyServiceLog{Weather: "rainy", Shift: "night", CrewSize: 4, Notes: "lane closed"}
	err := datastore.CreateReport(ctx, pavement.Report{
		ID: "daily-1", SurveyID: "srv-1", Kind: pavement.KindDailyService, Status: pavement.StatusPending, DailyLog: daily,
	})
	if err != nil {
		t.Fatalf("Failed to create daily service report: %s", err.Error())
	}

	stored, _ := datastore.GetReport(ctx, "daily-1")
	if stored.DailyLog == nil || *stored.DailyLog != *daily {
		t.Errorf("Daily service log %v did not survive a round trip.", stored.DailyLog)
	}
}

func TestStatusUpdateIsConditional(t *testing.T) {
	ctx := context.Background()
	datastore := newSurveyedDatastore(t)

	datastore.CreateReport(ctx, pavement.Report{ID: "rep-1", SurveyID: "srv-1", Kind: pavement.KindPhotographic, Status: pavement.StatusPending})

	err := datastore.UpdateReportStatus(ctx, pavement.StatusChange{
		ReportID: "rep-1", From: pavement.StatusRejected, To: pavement.StatusCorrected,
	})
	if !errors.Is(err, pavement.ErrStaleStatus) {
		t.Errorf("Expected ErrStaleStatus when the status has moved on, got %v.", err)
	}

	err = datastore.UpdateReportStatus(ctx, pavement.StatusChange{
		ReportID: "rep-1", From: pavement.StatusPending, To: pavement.StatusRejected, RejectionReason: strptr("blurry photos"),
	})
	if err != nil {
		t.Fatalf("Failed to reject report: %s", err.Error())
	}

	stored, _ := datastore.GetReport(ctx, "rep-1")
	if stored.Status != pavement.StatusRejected || stored.RejectionReason == nil || *stored.RejectionReason != "blurry photos" {
		t.Errorf("Rejected report %v did not match expectations.", stored)
	}

	err = datastore.UpdateReportStatus(ctx, pavement.StatusChange{ReportID: "ghost", From: pavement.StatusPending, To: pavement.StatusApproved})
	if !errors.Is(err, pavement.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an unknown report, got %v.", err)
	}
}

func TestApprovedReportLocksItsObservations(t *testing.T) {
	ctx := context.Background()
	datastore := newSurveyedDatastore(t)

	datastore.CreateReport(ctx, pavement.Report{
		ID: "rep-1", SurveyID: "srv-1", Kind: pavement.KindPhotographic, Status: pavement.StatusPending, ObservationIDs: []string{"obs-1"},
	})

	locked, _ := datastore.IsObservationLocked(ctx, "obs-1")
	if locked {
		t.Error("Observation should not be locked by a pending report.")
	}

	datastore.UpdateReportStatus(ctx, pavement.StatusChange{
		ReportID: "rep-1", From: pavement.StatusPending, To: pavement.StatusApproved, ApproverID: strptr("eng-1"),
	})

	locked, _ = datastore.IsObservationLocked(ctx, "obs-1")
	if !locked {
		t.Error("Observation should be locked by an approved report.")
	}

	if err := datastore.DeleteObservation(ctx, "obs-1"); !errors.Is(err, pavement.ErrObservationLocked) {
		t.Errorf("Expected deleting a locked observation to fail, got %v.", err)
	}

	if err := datastore.UpdateObservationDefect(ctx, "obs-1", nil); !errors.Is(err, pavement.ErrObservationLocked) {
		t.Errorf("Expected updating a locked observation to fail, got %v.", err)
	}

	if err := datastore.DeleteObservation(ctx, "obs-2"); err != nil {
		t.Errorf("Failed to delete an unlocked observation: %s", err.Error())
	}
}

func TestDeleteSurveyWithReportsIsRefused(t *testing.T) {
	ctx := context.Background()
	datastore := newSurveyedDatastore(t)

	datastore.CreateReport(ctx, pavement.Report{ID: "rep-1", SurveyID: "srv-1", Kind: pavement.KindPhotographic, Status: pavement.StatusPending})

	if err := datastore.DeleteSurvey(ctx, "srv-1"); !errors.Is(err, pavement.ErrHasDependents) {
		t.Errorf("Expected ErrHasDependents, got %v.", err)
	}

	if err := datastore.DeleteReport(ctx, "rep-1", pavement.StatusPending); err != nil {
		t.Fatalf("Failed to delete report: %s", err.Error())
	}

	if err := datastore.DeleteSurvey(ctx, "srv-1"); err != nil {
		t.Errorf("Failed to delete survey without reports: %s", err.Error())
	}

	observations, _ := datastore.ListObservations(ctx, pavement.ObservationFilter{SurveyID: "srv-1"})
	if len(observations) != 0 {
		t.Errorf("Expected the observations of a deleted survey to be gone, found %d.", len(observations))
	}
}

func TestApprovalFlowFeedsTheCalculator(t *testing.T) {
	ctx := context.Background()
	datastore := newSurveyedDatastore(t)

	service := lifecycle.NewService(datastore, nil)
	calc := igg.NewCalculator(datastore)

	inspector := pavement.Actor{ID: "insp-1", Role: pavement.RoleInspector}
	engineer := pavement.Actor{ID: "eng-1", Role: pavement.RoleEngineer}

	report, err := service.CreateReport(ctx, inspector, lifecycle.CreateRequest{
		SurveyID:       "srv-1",
		Kind:           pavement.KindPhotographic,
		ObservationIDs: []string{"obs-1", "obs-2", "obs-3", "obs-4", "obs-5"},
	})
	if err != nil {
		t.Fatalf("Failed to create report: %s", err.Error())
	}

	value, _ := calc.SegmentIGG(ctx, "br316-1")
	if value != 0 {
		t.Errorf("A pending report should not contribute to the IGG, got %f.", value)
	}

	if _, err = service.Approve(ctx, engineer, report.ID); err != nil {
		t.Fatalf("Failed to approve report: %s", err.Error())
	}

	//segment 0-0.5 km has 25 stakes: 5*100/25*0.9 = 18
	value, err = calc.SegmentIGG(ctx, "br316-1")
	if err != nil || igg.Round2(value) != 18.0 {
		t.Errorf("Unexpected segment IGG after approval: %f (%v)", value, err)
	}
}

func TestUnknownDefectTypesAreRefused(t *testing.T) {
	ctx := context.Background()
	datastore := newSurveyedDatastore(t)

	err := datastore.AddObservation(ctx, pavement.Observation{ID: "obs-bad", SurveyID: "srv-1", DefectTypeID: strptr("no-such-defect")})
	if !errors.Is(err, pavement.ErrUnknownDefectType) {
		t.Errorf("Expected an observation with an unknown defect type to be refused, got %v.", err)
	}

	err = datastore.UpdateObservationDefect(ctx, "obs-clean", strptr("no-such-defect"))
	if !errors.Is(err, pavement.ErrUnknownDefectType) {
		t.Errorf("Expected an unknown defect type to be refused, got %v.", err)
	}

	if err = datastore.UpdateObservationDefect(ctx, "obs-clean", strptr("patch")); err != nil {
		t.Errorf("Failed to tag an observation with a known defect type: %s", err.Error())
	}

	datastore.CreateReport(ctx, pavement.Report{
		ID: "rep-1", SurveyID: "srv-1", Kind: pavement.KindPhotographic, Status: pavement.StatusPending, ObservationIDs: []string{"obs-1"},
	})
	datastore.UpdateReportStatus(ctx, pavement.StatusChange{ReportID: "rep-1", From: pavement.StatusPending, To: pavement.StatusApproved})

	value, err := igg.NewCalculator(datastore).SegmentIGG(ctx, "br316-1")
	if err != nil || igg.Round2(value) != 3.6 {
		t.Errorf("Unexpected segment IGG after refused writes: %f (%v)", value, err)
	}
}

func TestOnlyApprovedLinksCountTowardsTheIGG(t *testing.T) {
	ctx := context.Background()
	datastore := newSurveyedDatastore(t)
	calc := igg.NewCalculator(datastore)

	datastore.CreateReport(ctx, pavement.Report{
		ID: "rep-1", SurveyID: "srv-1", Kind: pavement.KindPhotographic, Status: pavement.StatusPending, ObservationIDs: []string{"obs-1"},
	})
	datastore.UpdateReportStatus(ctx, pavement.StatusChange{ReportID: "rep-1", From: pavement.StatusPending, To: pavement.StatusApproved})

	//25 stakes: 1*100/25*0.9 = 3.6
	value, err := calc.SegmentIGG(ctx, "br316-1")
	if err != nil || igg.Round2(value) != 3.6 {
		t.Fatalf("Unexpected segment IGG with a single approved link: %f (%v)", value, err)
	}

	if err = datastore.DeleteObservation(ctx, "obs-3"); err != nil {
		t.Fatalf("Failed to delete an unlinked observation: %s", err.Error())
	}

	value, _ = calc.SegmentIGG(ctx, "br316-1")
	if igg.Round2(value) != 3.6 {
		t.Errorf("Removing an unlinked observation changed the approved IGG to %f.", value)
	}
}
