package context

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ngsi "github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/ngsi-ld"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/igg"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/stakes"
)

const (
	//RoadSegmentTypeName is the NGSI-LD type of the entities served by this source
	RoadSegmentTypeName = "RoadSegment"
	roadSegmentIDPrefix = "urn:ngsi-ld:RoadSegment:"
	roadIDPrefix        = "urn:ngsi-ld:Road:"
)

//SegmentStore is the part of the datastore the context source reads and writes
type SegmentStore interface {
	ListSegments(ctx context.Context) ([]pavement.Segment, error)
	AddSegment(ctx context.Context, segment pavement.Segment) error
}

//SegmentScorer computes the current IGG of a segment
type SegmentScorer interface {
	SegmentIGG(ctx context.Context, segmentID string) (float64, error)
}

type contextSource struct {
	db   SegmentStore
	calc SegmentScorer
}

//CreateSource instantiates and returns a Fiware ContextSource that wraps the provided db interface
func CreateSource(db SegmentStore, calc SegmentScorer) ngsi.ContextSource {
	return &contextSource{db: db, calc: calc}
}

type property struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

type relationship struct {
	Type   string `json:"type"`
	Object string `json:"object"`
}

//RoadSegment is the NGSI-LD representation of a segment and its pavement condition
type RoadSegment struct {
	ID                string        `json:"id"`
	Type              string        `json:"type"`
	RefRoad           *relationship `json:"refRoad,omitempty"`
	StartKm           *property     `json:"startKm,omitempty"`
	EndKm             *property     `json:"endKm,omitempty"`
	Stakes            *property     `json:"stakes,omitempty"`
	IGG               *property     `json:"igg,omitempty"`
	PavementCondition *property     `json:"pavementCondition,omitempty"`
	Context           []string      `json:"@context"`
}

func newRoadSegment(segment pavement.Segment, value float64) RoadSegment {
	return RoadSegment{
		ID:                roadSegmentIDPrefix + segment.ID,
		Type:              RoadSegmentTypeName,
		RefRoad:           &relationship{Type: "Relationship", Object: roadIDPrefix + segment.RoadID},
		StartKm:           &property{Type: "Property", Value: segment.KmStart},
		EndKm:             &property{Type: "Property", Value: segment.KmEnd},
		Stakes:            &property{Type: "Property", Value: stakes.Count(segment.KmStart, segment.KmEnd)},
		IGG:               &property{Type: "Property", Value: igg.Round2(value)},
		PavementCondition: &property{Type: "Property", Value: string(igg.Classify(value))},
		Context: []string{
			"https://schema.lab.fiware.org/ld/context",
			"https://uri.etsi.org/ngsi-ld/v1/ngsi-ld-core-context.jsonld",
		},
	}
}

func (cs *contextSource) CreateEntity(typeName, entityID string, req ngsi.Request) error {
	if typeName != RoadSegmentTypeName {
		return fmt.Errorf("entities of type %s are not supported by this service", typeName)
	}

	entity := &RoadSegment{}
	err := req.DecodeBodyInto(entity)
	if err != nil {
		return err
	}

	return cs.create(context.Background(), entity)
}

func (cs *contextSource) create(ctx context.Context, entity *RoadSegment) error {
	segment, err := toSegment(entity)
	if err != nil {
		return err
	}

	return cs.db.AddSegment(ctx, segment)
}

func toSegment(entity *RoadSegment) (pavement.Segment, error) {
	if !strings.HasPrefix(entity.ID, roadSegmentIDPrefix) {
		return pavement.Segment{}, fmt.Errorf("entity id %s must start with %s", entity.ID, roadSegmentIDPrefix)
	}
	if entity.RefRoad == nil || !strings.HasPrefix(entity.RefRoad.Object, roadIDPrefix) {
		return pavement.Segment{}, errors.New("a road segment must refer to its road")
	}

	kmStart, okStart := number(entity.StartKm)
	kmEnd, okEnd := number(entity.EndKm)
	if !okStart || !okEnd {
		return pavement.Segment{}, errors.New("startKm and endKm must be numeric properties")
	}

	if err := stakes.Validate(kmStart, kmEnd); err != nil {
		return pavement.Segment{}, err
	}

	return pavement.Segment{
		ID:      strings.TrimPrefix(entity.ID, roadSegmentIDPrefix),
		RoadID:  strings.TrimPrefix(entity.RefRoad.Object, roadIDPrefix),
		KmStart: kmStart,
		KmEnd:   kmEnd,
	}, nil
}

func number(p *property) (float64, bool) {
	if p == nil {
		return 0, false
	}
	value, ok := p.Value.(float64)
	return value, ok
}

func (cs *contextSource) GetEntities(query ngsi.Query, callback ngsi.QueryEntitiesCallback) error {
	entities, err := cs.entities(context.Background())
	if err != nil {
		return err
	}

	for _, entity := range entities {
		err = callback(entity)
		if err != nil {
			break
		}
	}

	return err
}

func (cs *contextSource) entities(ctx context.Context) ([]RoadSegment, error) {
	segments, err := cs.db.ListSegments(ctx)
	if err != nil {
		log.Errorf("Failed to list road segments: %s", err.Error())
		return nil, errors.New("failed to list road segments")
	}

	entities := make([]RoadSegment, 0, len(segments))
	for _, segment := range segments {
		value, err := cs.calc.SegmentIGG(ctx, segment.ID)
		if err != nil {
			return nil, err
		}
		entities = append(entities, newRoadSegment(segment, value))
	}

	return entities, nil
}

func (cs contextSource) ProvidesAttribute(attributeName string) bool {
	switch attributeName {
	case "igg", "pavementCondition", "refRoad", "startKm", "endKm", "stakes":
		return true
	}
	return false
}

func (cs contextSource) ProvidesEntitiesWithMatchingID(entityID string) bool {
	return strings.HasPrefix(entityID, roadSegmentIDPrefix)
}

func (cs contextSource) ProvidesType(typeName string) bool {
	return typeName == RoadSegmentTypeName
}

func (cs contextSource) UpdateEntityAttributes(entityID string, req ngsi.Request) error {
	return errors.New("UpdateEntityAttributes is not supported by this service")
}
