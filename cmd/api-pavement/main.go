package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/config"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/database"
	fiwarecontext "github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/fiware/context"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/igg"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/lifecycle"
	pavementmessaging "github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/messaging"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/messaging/events"
	"github.com/iot-for-tillgenglighet/api-pavement/pkg/handler"
)

func openFile(path, description string) *os.File {
	if path == "" {
		return nil
	}

	datafile, err := os.Open(path)
	if err != nil {
		log.Infof("Failed to open the %s file %s. Datastore will not be seeded.", description, path)
		return nil
	}
	return datafile
}

var segmentsFileName string
var defectsFileName string
var envFileName string

func main() {
	flag.StringVar(&segmentsFileName, "segsfile", "", "The file to seed road segments from")
	flag.StringVar(&defectsFileName, "defectsfile", "", "The YAML file to seed the defect catalog from")
	flag.StringVar(&envFileName, "envfile", ".env", "An optional file with environment variables")
	flag.Parse()

	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load(envFileName)
	if err != nil {
		log.Fatalf("Failed to load configuration: %s", err.Error())
	}

	log.Infof("Starting up %s ...", cfg.ServiceName)

	var seed io.Reader
	if datafile := openFile(segmentsFileName, "segments database"); datafile != nil {
		defer datafile.Close()
		seed = datafile
	}

	db, err := database.NewDatabaseConnection(cfg.Connector(), seed)
	if err != nil {
		log.Fatalf("Failed to connect to the database: %s", err.Error())
	}

	if catalog := openFile(defectsFileName, "defect catalog"); catalog != nil {
		_, err = database.SeedDefectCatalog(context.Background(), db, catalog)
		catalog.Close()
		if err != nil {
			log.Fatalf("Failed to seed the defect catalog: %s", err.Error())
		}
	}

	calc := igg.NewCalculator(db)

	var notifier lifecycle.Notifier

	if cfg.MessagingEnabled {
		messenger, err := messaging.Initialize(messaging.LoadConfiguration(cfg.ServiceName))
		if err != nil {
			log.Fatalf("Failed to initialize messaging: %s", err.Error())
		}
		defer messenger.Close()

		notifier = pavementmessaging.NewStatusNotifier(messenger)

		messenger.RegisterTopicMessageHandler(
			(&events.ReportStatusChanged{}).TopicName(),
			pavementmessaging.CreateReportStatusChangedReceiver(db, calc),
		)
		messenger.RegisterTopicMessageHandler(
			(&events.ObservationCaptured{}).TopicName(),
			pavementmessaging.CreateObservationCapturedReceiver(db),
		)
	}

	service := lifecycle.NewService(db, notifier)

	handler.CreateRouterAndStartServing(cfg.APIPort, fiwarecontext.CreateSource(db, calc), service, calc)
}
