// Package export streams created incidents to Kafka for downstream systems
// such as ticketing or long-term analytics.
package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/drishti/backend/models"
)

// IncidentExporter sends incidents to an external sink
type IncidentExporter interface {
	ExportIncident(incident *models.Incident) error
}

// IncidentMessage is the record written for every incident
type IncidentMessage struct {
	ID          string                `json:"id"`
	EventID     string                `json:"eventId"`
	Type        models.IncidentType   `json:"type"`
	Severity    models.Severity       `json:"severity"`
	Status      models.IncidentStatus `json:"status"`
	Description string                `json:"description"`
	CameraID    string                `json:"cameraId"`
	CameraName  string                `json:"cameraName"`
	Location    string                `json:"location"`
	SnapshotURL string                `json:"snapshotUrl,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
}

type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer connects a synchronous producer to the brokers
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return NewWithProducer(producer, topic), nil
}

// NewWithProducer wraps an existing producer
func NewWithProducer(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
	}
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

// ExportIncident writes one incident keyed by its event, so one event's
// incidents stay ordered within a partition.
func (p *Producer) ExportIncident(incident *models.Incident) error {
	cam := incident.CameraSnapshot()
	msg := IncidentMessage{
		ID:          incident.ID,
		EventID:     incident.EventID,
		Type:        incident.Type,
		Severity:    incident.Severity,
		Status:      incident.Status,
		Description: incident.Description,
		CameraID:    cam.ID,
		CameraName:  cam.Name,
		Location:    cam.Location,
		Timestamp:   incident.Timestamp,
	}
	if incident.SnapshotURL != nil {
		msg.SnapshotURL = *incident.SnapshotURL
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(incident.EventID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("export incident %s: %w", incident.ID, err)
	}
	return nil
}
