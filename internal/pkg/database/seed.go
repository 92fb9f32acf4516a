package database

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/stakes"
)

//initFromReader seeds roads and segments from lines of the form
//roadID;roadLengthKm;segmentID;kmStart;kmEnd
func (db *myDB) initFromReader(rd io.Reader) error {
	reader := bufio.NewReader(rd)
	var line string
	var err error

	log.Infof("Seeding datastore ...")

	for {
		line, err = reader.ReadString('\n')
		if err != nil && err != io.EOF {
			break
		}

		line = strings.TrimRight(line, "\r\n")
		parts := strings.Split(line, ";")

		if len(parts) == 5 {
			seedErr := db.impl.Transaction(func(tx *gorm.DB) error {
				return seedRecord(tx, parts)
			})
			if seedErr != nil {
				log.Errorf("Failed to seed record \"%s\": %s. Skipping record.", line, seedErr.Error())
			}
		} else if strings.TrimSpace(line) != "" && !strings.HasPrefix(line, "#") {
			log.Errorf("Malformed seed record \"%s\". Skipping record.", line)
		}

		if err != nil {
			break
		}
	}

	if err != io.EOF {
		log.Errorf(" > Failed with error: %v\n", err)
		return err
	}

	return nil
}

func seedRecord(tx *gorm.DB, parts []string) error {
	numbers := make([]float64, 0, 3)
	for _, idx := range []int{1, 3, 4} {
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[idx]), 64)
		if err != nil {
			return fmt.Errorf("failed to parse \"%s\" as a number", parts[idx])
		}
		numbers = append(numbers, value)
	}

	roadID := strings.TrimSpace(parts[0])
	segment := pavement.Segment{
		ID:      strings.TrimSpace(parts[2]),
		RoadID:  roadID,
		KmStart: numbers[1],
		KmEnd:   numbers[2],
	}

	if roadID == "" || segment.ID == "" {
		return fmt.Errorf("road and segment identities are required")
	}

	if err := stakes.Validate(segment.KmStart, segment.KmEnd); err != nil {
		return err
	}

	if err := upsertRoad(tx, roadID, numbers[0]); err != nil {
		return err
	}

	return addSegment(tx, segment)
}

type catalogEntry struct {
	ID     string  `yaml:"id"`
	Code   string  `yaml:"code"`
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

//SeedDefectCatalog reads a YAML list of defect types and stores them, keyed by code.
//Entries without an id use their code as id.
func SeedDefectCatalog(ctx context.Context, db Datastore, rd io.Reader) (int, error) {
	entries := []catalogEntry{}

	if err := yaml.NewDecoder(rd).Decode(&entries); err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to decode defect catalog: %s", err.Error())
	}

	for _, entry := range entries {
		if entry.Code == "" || entry.Name == "" {
			return 0, fmt.Errorf("defect catalog entries need both code and name")
		}
		if entry.Weight <= 0 {
			return 0, fmt.Errorf("defect type %s has a non positive weight factor %f", entry.Code, entry.Weight)
		}
	}

	for _, entry := range entries {
		id := entry.ID
		if id == "" {
			id = entry.Code
		}

		err := db.AddDefectType(ctx, pavement.DefectType{ID: id, Code: entry.Code, Name: entry.Name, Weight: entry.Weight})
		if err != nil {
			return 0, err
		}
	}

	log.Infof("Defect catalog seeded with %d defect types.", len(entries))

	return len(entries), nil
}
