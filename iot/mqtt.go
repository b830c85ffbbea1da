// Package iot mirrors emergency signals to MQTT so field hardware (sirens,
// beacons, drone docks) can react to them.
package iot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/drishti/backend/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Signaler publishes the current emergency state of a scope
type Signaler interface {
	Signal(scope, cameraID string, status models.EmergencyType) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
}

type Client struct {
	client mqtt.Client
}

func NewClient(cfg Config) (*Client, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}

	return &Client{client: cli}, nil
}

// StatusMessage is the retained payload of a status topic
type StatusMessage struct {
	Status    models.EmergencyType `json:"status"`
	Scope     string               `json:"scope"`
	CameraID  string               `json:"cameraId,omitempty"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// Topic returns the status topic of a scope: iot_status/global_command/status
// for the broadcast command, iot_status/<event>/<camera>/status otherwise.
func Topic(scope, cameraID string) string {
	if scope == models.GlobalIoTScope || cameraID == "" {
		return fmt.Sprintf("iot_status/%s/status", scope)
	}
	return fmt.Sprintf("iot_status/%s/%s/status", scope, cameraID)
}

// Signal publishes a retained status so devices connecting later see it
func (c *Client) Signal(scope, cameraID string, status models.EmergencyType) error {
	payload, err := json.Marshal(StatusMessage{
		Status:    status,
		Scope:     scope,
		CameraID:  cameraID,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return c.Publish(Topic(scope, cameraID), 1, true, payload)
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}
