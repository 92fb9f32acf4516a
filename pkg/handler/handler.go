package handler

import (
	"compress/flate"
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	ngsi "github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/ngsi-ld"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/igg"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/lifecycle"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
)

//ReportService runs the report lifecycle and the guarded ledger operations
type ReportService interface {
	CreateReport(ctx context.Context, actor pavement.Actor, req lifecycle.CreateRequest) (pavement.Report, error)
	EditReport(ctx context.Context, actor pavement.Actor, reportID string, req lifecycle.EditRequest) (pavement.Report, error)
	Approve(ctx context.Context, actor pavement.Actor, reportID string) (pavement.Report, error)
	Reject(ctx context.Context, actor pavement.Actor, reportID, reason string) (pavement.Report, error)
	RequestCancellation(ctx context.Context, actor pavement.Actor, reportID, reason string) (pavement.Report, error)
	ResolveCancellation(ctx context.Context, actor pavement.Actor, reportID string, approve bool) (pavement.Report, error)
	DeleteReport(ctx context.Context, actor pavement.Actor, reportID string) error
	GetReport(ctx context.Context, reportID string) (pavement.Report, error)
	ListReports(ctx context.Context, status pavement.ReportStatus) ([]pavement.Report, error)

	IsObservationLocked(ctx context.Context, observationID string) (bool, error)
	UpdateObservationDefect(ctx context.Context, observationID string, defectTypeID *string) error
	DeleteObservation(ctx context.Context, observationID string) error
	DeleteSurvey(ctx context.Context, surveyID string) error
}

//IGGService computes IGG values for segments and roads
type IGGService interface {
	SegmentIGG(ctx context.Context, segmentID string) (float64, error)
	History(ctx context.Context, segmentID string) ([]igg.Point, error)
	RoadSummary(ctx context.Context, roadID string) (igg.Rollup, error)
	RoadAsOf(ctx context.Context, roadID string, reference time.Time) (igg.Rollup, error)
}

//RequestRouter wraps the concrete router implementation
type RequestRouter struct {
	impl *chi.Mux
}

func (router *RequestRouter) addNGSIHandlers(contextRegistry ngsi.ContextRegistry) {
	router.Get("/ngsi-ld/v1/entities", ngsi.NewQueryEntitiesHandler(contextRegistry))
	router.Post("/ngsi-ld/v1/entities", ngsi.NewCreateEntityHandler(contextRegistry))
}

func (router *RequestRouter) addIGGHandlers(calc IGGService) {
	router.Get("/api/v1/segments/{id}/igg", newSegmentIGGHandler(calc))
	router.Get("/api/v1/segments/{id}/igg/history", newSegmentHistoryHandler(calc))
	router.Get("/api/v1/roads/{id}/igg", newRoadIGGHandler(calc))
}

func (router *RequestRouter) addReportHandlers(reports ReportService) {
	router.Get("/api/v1/reports", newListReportsHandler(reports))
	router.Get("/api/v1/reports/{id}", newGetReportHandler(reports))
	router.Post("/api/v1/reports", newCreateReportHandler(reports))
	router.Put("/api/v1/reports/{id}", newEditReportHandler(reports))
	router.Delete("/api/v1/reports/{id}", newDeleteReportHandler(reports))

	router.Post("/api/v1/reports/{id}/approve", newApproveReportHandler(reports))
	router.Post("/api/v1/reports/{id}/reject", newRejectReportHandler(reports))
	router.Post("/api/v1/reports/{id}/cancellation", newRequestCancellationHandler(reports))
	router.Post("/api/v1/reports/{id}/cancellation/resolve", newResolveCancellationHandler(reports))

	router.Get("/api/v1/observations/{id}/lock", newObservationLockHandler(reports))
	router.Patch("/api/v1/observations/{id}", newUpdateObservationHandler(reports))
	router.Delete("/api/v1/observations/{id}", newDeleteObservationHandler(reports))
	router.Delete("/api/v1/surveys/{id}", newDeleteSurveyHandler(reports))
}

func (router *RequestRouter) Post(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Post(pattern, handlerFn)
}

func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

func (router *RequestRouter) Put(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Put(pattern, handlerFn)
}

func (router *RequestRouter) Patch(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Patch(pattern, handlerFn)
}

func (router *RequestRouter) Delete(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Delete(pattern, handlerFn)
}

func newRequestRouter() *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Accept", "Content-Type", actorIDHeader, actorRoleHeader},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	//Enable gzip compression for json and ngsi-ld responses
	compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json", "application/ld+json")
	router.impl.Use(compressor.Handler)
	router.impl.Use(middleware.Logger)

	return router
}

func createRequestRouter(contextRegistry ngsi.ContextRegistry, reports ReportService, calc IGGService) *RequestRouter {
	router := newRequestRouter()

	router.addNGSIHandlers(contextRegistry)
	router.addIGGHandlers(calc)
	router.addReportHandlers(reports)

	return router
}

//CreateRouterAndStartServing creates a request router, registers all handlers and starts serving requests.
func CreateRouterAndStartServing(port string, ctxSource ngsi.ContextSource, reports ReportService, calc IGGService) {

	contextRegistry := ngsi.NewContextRegistry()
	contextRegistry.Register(ctxSource)

	router := createRequestRouter(contextRegistry, reports, calc)

	log.Printf("Starting api-pavement on port %s.\n", port)

	log.Fatal(http.ListenAndServe(":"+port, router.impl))
}
