package lifecycle_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/errors"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/lifecycle"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement/memstore"
)

func TestMain(m *testing.M) {
	log.SetFormatter(&log.JSONFormatter{})
	os.Exit(m.Run())
}

var (
	inspector = pavement.Actor{ID: "insp-1", Role: pavement.RoleInspector}
	engineer  = pavement.Actor{ID: "eng-1", Role: pavement.RoleEngineer}
	admin     = pavement.Actor{ID: "adm-1", Role: pavement.RoleAdmin}
)

type recorder struct {
	changes []string
}

func (r *recorder) ReportStatusChanged(report pavement.Report, previous pavement.ReportStatus) {
	r.changes = append(r.changes, string(previous)+">"+string(report.Status))
}

func strptr(s string) *string { return &s }

func newFixture() *memstore.Store {
	store := memstore.New()
	store.AddRoad(pavement.Road{ID: "BR-316", LengthKm: 2})
	store.AddSegment(pavement.Segment{ID: "seg-1", RoadID: "BR-316", KmStart: 0, KmEnd: 1})
	store.AddSurvey(pavement.Survey{ID: "srv-1", SegmentID: "seg-1", InspectorID: inspector.ID, Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)})
	store.AddSurvey(pavement.Survey{ID: "srv-2", SegmentID: "seg-1", InspectorID: inspector.ID, Date: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)})
	store.AddDefectType(pavement.DefectType{ID: "dt-1", Code: "FC-1", Name: "Fissure", Weight: 0.2})
	store.AddObservation(pavement.Observation{ID: "obs-1", SurveyID: "srv-1", SegmentID: "seg-1", DefectTypeID: strptr("dt-1")})
	store.AddObservation(pavement.Observation{ID: "obs-2", SurveyID: "srv-1", SegmentID: "seg-1", DefectTypeID: strptr("dt-1")})
	store.AddObservation(pavement.Observation{ID: "obs-3", SurveyID: "srv-1", SegmentID: "seg-1"})
	store.AddObservation(pavement.Observation{ID: "obs-4", SurveyID: "srv-2", SegmentID: "seg-1", DefectTypeID: strptr("dt-1")})
	return store
}

func createPhotographic(t *testing.T, svc *lifecycle.Service, ids ...string) pavement.Report {
	report, err := svc.CreateReport(context.Background(), inspector, lifecycle.CreateRequest{
		SurveyID:       "srv-1",
		Kind:           pavement.KindPhotographic,
		ObservationIDs: ids,
	})
	require.NoError(t, err)
	return report
}

func TestCreateReportStartsPending(t *testing.T) {
	notifications := &recorder{}
	svc := lifecycle.NewService(newFixture(), notifications)

	report := createPhotographic(t, svc, "obs-1", "obs-2", "obs-1")

	assert.Equal(t, pavement.StatusPending, report.Status)
	assert.Equal(t, inspector.ID, report.CreatedBy)
	assert.Equal(t, []string{"obs-1", "obs-2"}, report.ObservationIDs)
	assert.Equal(t, []string{">PENDING"}, notifications.changes)
}

func TestSecondPhotographicReportForSurveyIsAConflict(t *testing.T) {
	ctx := context.Background()
	svc := lifecycle.NewService(newFixture(), nil)
	createPhotographic(t, svc, "obs-1")

	_, err := svc.CreateReport(ctx, inspector, lifecycle.CreateRequest{SurveyID: "srv-1", Kind: pavement.KindPhotographic})
	assert.True(t, errors.IsConflict(err), "expected conflict, got %v", err)

	_, err = svc.CreateReport(ctx, inspector, lifecycle.CreateRequest{
		SurveyID: "srv-1",
		Kind:     pavement.KindDailyService,
		DailyLog: &pavement.DailyServiceLog{Weather: "sunny", Shift: "morning", CrewSize: 3},
	})
	assert.NoError(t, err, "a daily service report may coexist with the photographic one")
}

func TestCreateReportValidatesContent(t *testing.T) {
	ctx := context.Background()
	svc := lifecycle.NewService(newFixture(), nil)

	_, err := svc.CreateReport(ctx, inspector, lifecycle.CreateRequest{SurveyID: "srv-1", Kind: pavement.KindPhotographic, ObservationIDs: []string{"obs-4"}})
	assert.True(t, errors.IsValidation(err), "observation from another survey: %v", err)

	_, err = svc.CreateReport(ctx, inspector, lifecycle.CreateRequest{SurveyID: "srv-1", Kind: pavement.KindPhotographic, ObservationIDs: []string{"obs-3"}})
	assert.True(t, errors.IsValidation(err), "observation without defect: %v", err)

	_, err = svc.CreateReport(ctx, inspector, lifecycle.CreateRequest{SurveyID: "srv-1", Kind: pavement.KindDailyService})
	assert.True(t, errors.IsValidation(err), "missing daily log: %v", err)

	_, err = svc.CreateReport(ctx, inspector, lifecycle.CreateRequest{
		SurveyID: "srv-1",
		Kind:     pavement.KindDailyService,
		DailyLog: &pavement.DailyServiceLog{Weather: "sunny", Shift: "morning", CrewSize: 0},
	})
	assert.True(t, errors.IsValidation(err), "empty crew: %v", err)

	_, err = svc.CreateReport(ctx, inspector, lifecycle.CreateRequest{SurveyID: "srv-9", Kind: pavement.KindPhotographic})
	assert.True(t, errors.IsNotFound(err), "unknown survey: %v", err)
}

func TestRolesAreEnforced(t *testing.T) {
	ctx := context.Background()
	svc := lifecycle.NewService(newFixture(), nil)

	_, err := svc.CreateReport(ctx, engineer, lifecycle.CreateRequest{SurveyID: "srv-1", Kind: pavement.KindPhotographic})
	assert.True(t, errors.IsAccess(err))

	other := pavement.Actor{ID: "insp-2", Role: pavement.RoleInspector}
	_, err = svc.CreateReport(ctx, other, lifecycle.CreateRequest{SurveyID: "srv-1", Kind: pavement.KindPhotographic})
	assert.True(t, errors.IsAccess(err), "only the surveying inspector may report")

	report := createPhotographic(t, svc, "obs-1")

	_, err = svc.Approve(ctx, inspector, report.ID)
	assert.True(t, errors.IsAccess(err))
	_, err = svc.Approve(ctx, admin, report.ID)
	assert.True(t, errors.IsAccess(err))

	_, err = svc.Approve(ctx, engineer, report.ID)
	require.NoError(t, err)

	_, err = svc.RequestCancellation(ctx, inspector, report.ID, "wrong segment photos")
	assert.True(t, errors.IsAccess(err))

	_, err = svc.RequestCancellation(ctx, admin, report.ID, "wrong segment photos")
	require.NoError(t, err)

	_, err = svc.ResolveCancellation(ctx, engineer, report.ID, true)
	assert.True(t, errors.IsAccess(err))
}

func TestApproveAndRejectAreDeniedFromApproved(t *testing.T) {
	ctx := context.Background()
	svc := lifecycle.NewService(newFixture(), nil)
	report := createPhotographic(t, svc, "obs-1")

	approved, err := svc.Approve(ctx, engineer, report.ID)
	require.NoError(t, err)
	assert.Equal(t, pavement.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApproverID)
	assert.Equal(t, engineer.ID, *approved.ApproverID)

	_, err = svc.Approve(ctx, engineer, report.ID)
	assert.True(t, errors.IsInvalidTransition(err), "approve from approved: %v", err)

	_, err = svc.Reject(ctx, engineer, report.ID, "blurry photos")
	assert.True(t, errors.IsInvalidTransition(err), "reject from approved: %v", err)
}

func TestRejectRequiresAReason(t *testing.T) {
	ctx := context.Background()
	svc := lifecycle.NewService(newFixture(), nil)
	report := createPhotographic(t, svc, "obs-1")

	_, err := svc.Reject(ctx, engineer, report.ID, "  bad  ")
	assert.True(t, errors.IsValidation(err))

	rejected, err := svc.Reject(ctx, engineer, report.ID, "  blurry  ")
	require.NoError(t, err)
	assert.Equal(t, pavement.StatusRejected, rejected.Status)
	assert.Equal(t, "blurry", *rejected.RejectionReason)
}

func TestApproveClearsRejectionReason(t *testing.T) {
	ctx := context.Background()
	svc := lifecycle.NewService(newFixture(), nil)
	report := createPhotographic(t, svc, "obs-1")

	_, err := svc.Reject(ctx, engineer, report.ID, "missing photos")
	require.NoError(t, err)

	corrected, err := svc.EditReport(ctx, inspector, report.ID, lifecycle.EditRequest{ObservationIDs: []string{"obs-1", "obs-2"}})
	require.NoError(t, err)
	assert.Equal(t, pavement.StatusCorrected, corrected.Status)

	approved, err := svc.Approve(ctx, engineer, report.ID)
	require.NoError(t, err)
	assert.Nil(t, approved.RejectionReason)

	stored, err := svc.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.RejectionReason)
	assert.Equal(t, pavement.StatusApproved, stored.Status)
}

func TestRequestCancellationOnlyFromApproved(t *testing.T) {
	ctx := context.Background()
	store := newFixture()
	svc := lifecycle.NewService(store, nil)

	for _, status := range []pavement.ReportStatus{
		pavement.StatusPending, pavement.StatusCorrected, pavement.StatusRejected, pavement.StatusCancellationPending,
	} {
		store.PutReport(pavement.Report{ID: "r-" + string(status), SurveyID: "srv-2", Kind: pavement.KindPhotographic, Status: status})

		_, err := svc.RequestCancellation(ctx, engineer, "r-"+string(status), "photos belong to another road")
		assert.True(t, errors.IsInvalidTransition(err), "from %s: %v", status, err)
	}
}

func TestRequestCancellationNeedsTenCharacters(t *testing.T) {
	ctx := context.Background()
	svc := lifecycle.NewService(newFixture(), nil)
	report := createPhotographic(t, svc, "obs-1")
	_, err := svc.Approve(ctx, engineer, report.ID)
	require.NoError(t, err)

	_, err = svc.RequestCancellation(ctx, engineer, report.ID, "   123456789   ")
	assert.True(t, errors.IsValidation(err), "nine characters after trimming: %v", err)

	pending, err := svc.RequestCancellation(ctx, engineer, report.ID, "   1234567890   ")
	require.NoError(t, err)
	assert.Equal(t, "1234567890", *pending.CancellationReason)
}

func TestCancellationEndToEnd(t *testing.T) {
	ctx := context.Background()
	notifications := &recorder{}
	svc := lifecycle.NewService(newFixture(), notifications)

	report := createPhotographic(t, svc, "obs-1")
	assert.Equal(t, pavement.StatusPending, report.Status)

	report, err := svc.Approve(ctx, engineer, report.ID)
	require.NoError(t, err)
	assert.Equal(t, pavement.StatusApproved, report.Status)
	assert.Equal(t, engineer.ID, *report.ApproverID)

	reason := "wrong survey"
	require.Len(t, reason, 12)

	report, err = svc.RequestCancellation(ctx, engineer, report.ID, reason)
	require.NoError(t, err)
	assert.Equal(t, pavement.StatusCancellationPending, report.Status)
	assert.Equal(t, reason, *report.CancellationReason)

	report, err = svc.ResolveCancellation(ctx, admin, report.ID, true)
	require.NoError(t, err)
	assert.Equal(t, pavement.StatusRejected, report.Status)
	assert.Nil(t, report.CancellationReason)
	require.NotNil(t, report.RejectionReason)
	assert.True(t, strings.Contains(*report.RejectionReason, reason))

	stored, err := svc.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.CancellationRejectionReason(reason), *stored.RejectionReason)

	assert.Equal(t, []string{">PENDING", "PENDING>APPROVED", "APPROVED>CANCELLATION_PENDING", "CANCELLATION_PENDING>REJECTED"}, notifications.changes)
}

func TestDeniedCancellationRestoresApproval(t *testing.T) {
	ctx := context.Background()
	svc := lifecycle.NewService(newFixture(), nil)

	report := createPhotographic(t, svc, "obs-1")
	_, err := svc.Approve(ctx, engineer, report.ID)
	require.NoError(t, err)
	_, err = svc.RequestCancellation(ctx, admin, report.ID, "duplicate of survey 2")
	require.NoError(t, err)

	restored, err := svc.ResolveCancellation(ctx, admin, report.ID, false)
	require.NoError(t, err)
	assert.Equal(t, pavement.StatusApproved, restored.Status)
	assert.Nil(t, restored.CancellationReason)
	assert.Nil(t, restored.RejectionReason)

	_, err = svc.ResolveCancellation(ctx, admin, report.ID, false)
	assert.True(t, errors.IsInvalidTransition(err))
}

func TestObservationLockFollowsApproval(t *testing.T) {
	ctx := context.Background()
	svc := lifecycle.NewService(newFixture(), nil)

	report := createPhotographic(t, svc, "obs-1")

	locked, err := svc.IsObservationLocked(ctx, "obs-1")
	require.NoError(t, err)
	assert.False(t, locked, "pending reports do not lock")

	_, err = svc.Approve(ctx, engineer, report.ID)
	require.NoError(t, err)

	locked, err = svc.IsObservationLocked(ctx, "obs-1")
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = svc.IsObservationLocked(ctx, "obs-2")
	require.NoError(t, err)
	assert.False(t, locked, "unlinked observations stay unlocked")

	err = svc.DeleteObservation(ctx, "obs-1")
	assert.True(t, errors.IsConflict(err))
	err = svc.UpdateObservationDefect(ctx, "obs-1", nil)
	assert.True(t, errors.IsConflict(err))

	_, err = svc.RequestCancellation(ctx, engineer, report.ID, "photos were swapped")
	require.NoError(t, err)
	_, err = svc.ResolveCancellation(ctx, admin, report.ID, true)
	require.NoError(t, err)

	locked, err = svc.IsObservationLocked(ctx, "obs-1")
	require.NoError(t, err)
	assert.False(t, locked, "rejection through cancellation unlocks")

	assert.NoError(t, svc.UpdateObservationDefect(ctx, "obs-1", nil))

	_, err = svc.IsObservationLocked(ctx, "obs-404")
	assert.True(t, errors.IsNotFound(err))
}

func TestEditReplacesLinksWholesale(t *testing.T) {
	ctx := context.Background()
	svc := lifecycle.NewService(newFixture(), nil)
	report := createPhotographic(t, svc, "obs-1")

	edited, err := svc.EditReport(ctx, inspector, report.ID, lifecycle.EditRequest{ObservationIDs: []string{"obs-2"}})
	require.NoError(t, err)
	assert.Equal(t, pavement.StatusPending, edited.Status, "editing a pending report keeps its status")
	assert.Equal(t, []string{"obs-2"}, edited.ObservationIDs)

	_, err = svc.Approve(ctx, engineer, report.ID)
	require.NoError(t, err)

	locked, _ := svc.IsObservationLocked(ctx, "obs-1")
	assert.False(t, locked)
	locked, _ = svc.IsObservationLocked(ctx, "obs-2")
	assert.True(t, locked)

	_, err = svc.EditReport(ctx, inspector, report.ID, lifecycle.EditRequest{ObservationIDs: []string{"obs-1"}})
	assert.True(t, errors.IsInvalidTransition(err))

	other := pavement.Actor{ID: "insp-2", Role: pavement.RoleInspector}
	_, err = svc.EditReport(ctx, other, report.ID, lifecycle.EditRequest{})
	assert.True(t, errors.IsAccess(err))
}

func TestDeleteReportGuards(t *testing.T) {
	ctx := context.Background()
	svc := lifecycle.NewService(newFixture(), nil)
	report := createPhotographic(t, svc, "obs-1")

	err := svc.DeleteSurvey(ctx, "srv-1")
	assert.True(t, errors.IsConflict(err), "surveys with reports cannot be deleted")

	_, err = svc.Approve(ctx, engineer, report.ID)
	require.NoError(t, err)

	err = svc.DeleteReport(ctx, inspector, report.ID)
	assert.True(t, errors.IsInvalidTransition(err))

	_, err = svc.RequestCancellation(ctx, engineer, report.ID, "photos were swapped")
	require.NoError(t, err)
	_, err = svc.ResolveCancellation(ctx, admin, report.ID, true)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteReport(ctx, admin, report.ID))

	_, err = svc.GetReport(ctx, report.ID)
	assert.True(t, errors.IsNotFound(err))

	assert.NoError(t, svc.DeleteSurvey(ctx, "srv-1"))
}

type racingStore struct {
	*memstore.Store
}

func (r racingStore) UpdateReportStatus(ctx context.Context, change pavement.StatusChange) error {
	current, _ := r.Store.GetReport(ctx, change.ReportID)
	current.Status = pavement.StatusRejected
	r.Store.PutReport(current)
	return r.Store.UpdateReportStatus(ctx, change)
}

func TestConcurrentStatusChangeIsAConflict(t *testing.T) {
	ctx := context.Background()
	store := newFixture()
	svc := lifecycle.NewService(racingStore{store}, nil)

	report, err := svc.CreateReport(ctx, inspector, lifecycle.CreateRequest{SurveyID: "srv-1", Kind: pavement.KindPhotographic, ObservationIDs: []string{"obs-1"}})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, engineer, report.ID)
	assert.True(t, errors.IsConflict(err), "expected conflict, got %v", err)

	stored, err := store.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, pavement.StatusRejected, stored.Status, "the concurrent write must not be overwritten")
}

func TestListReportsByStatus(t *testing.T) {
	ctx := context.Background()
	svc := lifecycle.NewService(newFixture(), nil)
	createPhotographic(t, svc, "obs-1")

	pending, err := svc.ListReports(ctx, pavement.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	approved, err := svc.ListReports(ctx, pavement.StatusApproved)
	require.NoError(t, err)
	assert.Empty(t, approved)

	_, err = svc.ListReports(ctx, "ARCHIVED")
	assert.True(t, errors.IsValidation(err))
}

func TestUpdateObservationDefectChecksTheCatalog(t *testing.T) {
	ctx := context.Background()
	store := newFixture()
	svc := lifecycle.NewService(store, nil)

	err := svc.UpdateObservationDefect(ctx, "obs-3", strptr("no-such-defect"))
	assert.True(t, errors.IsValidation(err))

	require.NoError(t, svc.UpdateObservationDefect(ctx, "obs-3", strptr("dt-1")))
	require.NoError(t, svc.UpdateObservationDefect(ctx, "obs-2", strptr("")))

	tagged, err := store.ListObservations(ctx, pavement.ObservationFilter{SurveyID: "srv-1", HasDefectType: true})
	require.NoError(t, err)
	require.Len(t, tagged, 2)
	assert.Equal(t, "obs-1", tagged[0].ID)
	assert.Equal(t, "obs-3", tagged[1].ID)
}
