package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// WebcamID is the always-present local camera. It is never stored.
const WebcamID = "cam-webcam"

// CameraStatus enum
type CameraStatus string

const (
	CameraOnline  CameraStatus = "Online"
	CameraOffline CameraStatus = "Offline"
	CameraAlert   CameraStatus = "Alert"
)

// Valid reports whether s is a known camera status
func (s CameraStatus) Valid() bool {
	switch s {
	case CameraOnline, CameraOffline, CameraAlert:
		return true
	}
	return false
}

// IncidentType enum
type IncidentType string

const (
	IncidentCrowdSurge         IncidentType = "Crowd surge"
	IncidentUnauthorizedAccess IncidentType = "Unauthorized access"
	IncidentSuspicious         IncidentType = "Suspicious behavior"
	IncidentEmergency          IncidentType = "Emergency"
	IncidentTheft              IncidentType = "Theft"
)

// IncidentTypes lists every incident type in prompt order
var IncidentTypes = []IncidentType{
	IncidentCrowdSurge,
	IncidentUnauthorizedAccess,
	IncidentSuspicious,
	IncidentEmergency,
	IncidentTheft,
}

func (t IncidentType) Valid() bool {
	for _, known := range IncidentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Severities lists every severity from most to least urgent
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) Valid() bool {
	for _, known := range Severities {
		if s == known {
			return true
		}
	}
	return false
}

// TypicalSeverity is the severity the model is told to expect for each type
var TypicalSeverity = map[IncidentType]Severity{
	IncidentCrowdSurge:         SeverityHigh,
	IncidentUnauthorizedAccess: SeverityMedium,
	IncidentSuspicious:         SeverityLow,
	IncidentEmergency:          SeverityCritical,
	IncidentTheft:              SeverityHigh,
}

// IncidentStatus enum
type IncidentStatus string

const (
	StatusActive             IncidentStatus = "Active"
	StatusUnderInvestigation IncidentStatus = "Under Investigation"
	StatusResolved           IncidentStatus = "Resolved"
)

func (s IncidentStatus) Valid() bool {
	switch s {
	case StatusActive, StatusUnderInvestigation, StatusResolved:
		return true
	}
	return false
}

// EmergencyType enum for the IoT status channel
type EmergencyType string

const (
	EmergencyPolice    EmergencyType = "Police"
	EmergencyAmbulance EmergencyType = "Ambulance"
	EmergencyFire      EmergencyType = "Fire"
	EmergencyDrone     EmergencyType = "Drone"
	EmergencyNone      EmergencyType = "None"
)

func (e EmergencyType) Valid() bool {
	switch e {
	case EmergencyPolice, EmergencyAmbulance, EmergencyFire, EmergencyDrone, EmergencyNone:
		return true
	}
	return false
}

// Label is the human name used in alert messages
func (e EmergencyType) Label() string {
	switch e {
	case EmergencyFire:
		return "Fire Alarm"
	case EmergencyDrone:
		return "Deploy Drone"
	}
	return string(e)
}

// JSONB type for GORM - can handle both objects and arrays.
// Stored as jsonb on postgres and as text on sqlite.
type JSONB struct {
	Data interface{} `json:"-"`
}

// NewJSONB creates a new JSONB from any value
func NewJSONB(v interface{}) JSONB {
	return JSONB{Data: v}
}

// UnmarshalJSON implements json.Unmarshaler
func (j *JSONB) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &j.Data)
}

// MarshalJSON implements json.Marshaler
func (j JSONB) MarshalJSON() ([]byte, error) {
	if j.Data == nil {
		return []byte("null"), nil
	}
	return json.Marshal(j.Data)
}

// GormDataType gives the generic data type used by migrations
func (JSONB) GormDataType() string {
	return "json"
}

// GormDBDataType picks jsonb on postgres and text elsewhere
func (JSONB) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

func (j JSONB) Value() (driver.Value, error) {
	if j.Data == nil {
		return nil, nil
	}
	b, err := json.Marshal(j.Data)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		j.Data = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source %T", value)
	}
	return json.Unmarshal(raw, &j.Data)
}

// Decode re-marshals the generic payload into out
func (j JSONB) Decode(out interface{}) error {
	if j.Data == nil {
		return nil
	}
	b, err := json.Marshal(j.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// Event is the session scope every other record belongs to
type Event struct {
	ID        string    `gorm:"primaryKey;column:id" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	UserID    string    `gorm:"column:user_id;index" json:"userId"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
}

func (Event) TableName() string {
	return "events"
}

// Coordinates is a WGS84 point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Camera model
type Camera struct {
	ID          string       `gorm:"primaryKey;column:id" json:"id"`
	EventID     string       `gorm:"column:event_id;index" json:"eventId"`
	Name        string       `gorm:"column:name" json:"name"`
	Location    string       `gorm:"column:location" json:"location"`
	Status      CameraStatus `gorm:"column:status;default:Online" json:"status"`
	LastSeen    time.Time    `gorm:"column:last_seen" json:"lastSeen"`
	Coordinates Coordinates  `gorm:"embedded;embeddedPrefix:coord_" json:"coordinates"`
	Zone        string       `gorm:"column:zone" json:"zone"`
	StreamURL   string       `gorm:"column:stream_url" json:"streamUrl,omitempty"`
	StreamImage string       `gorm:"column:stream_image" json:"streamImage,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Camera) TableName() string {
	return "cameras"
}

// WebcamCamera returns the synthesized local camera for an event
func WebcamCamera(eventID string) Camera {
	return Camera{
		ID:       WebcamID,
		EventID:  eventID,
		Name:     "Your Webcam",
		Location: "Local Feed",
		Status:   CameraOnline,
		LastSeen: time.Now(),
	}
}

// Position is a normalized person position, both axes in [0,1]
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AlertDescriptor is one alert returned by the analysis of a frame
type AlertDescriptor struct {
	Type        IncidentType `json:"type"`
	Description string       `json:"description"`
	Severity    Severity     `json:"severity"`
}

// FrameAnalysis is the structured output of analyzing one frame
type FrameAnalysis struct {
	CrowdCount      int               `json:"crowdCount"`
	PeoplePositions []Position        `json:"peoplePositions"`
	NewAlerts       []AlertDescriptor `json:"newAlerts"`
}

// EmptyAnalysis is the zero result used when the model returns nothing
func EmptyAnalysis() *FrameAnalysis {
	return &FrameAnalysis{
		PeoplePositions: []Position{},
		NewAlerts:       []AlertDescriptor{},
	}
}

// AnalysisResult is the latest analysis for one camera, overwritten every cycle
type AnalysisResult struct {
	ID              string    `gorm:"primaryKey;column:id" json:"-"`
	EventID         string    `gorm:"column:event_id;index" json:"eventId"`
	CameraID        string    `gorm:"column:camera_id" json:"cameraId"`
	CrowdCount      int       `gorm:"column:crowd_count" json:"crowdCount"`
	PeoplePositions JSONB     `gorm:"column:people_positions" json:"peoplePositions"`
	NewAlerts       JSONB     `gorm:"column:new_alerts" json:"newAlerts"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (AnalysisResult) TableName() string {
	return "analysis_results"
}

// Analysis decodes the stored columns back into a FrameAnalysis
func (r AnalysisResult) Analysis() FrameAnalysis {
	out := FrameAnalysis{CrowdCount: r.CrowdCount}
	_ = r.PeoplePositions.Decode(&out.PeoplePositions)
	_ = r.NewAlerts.Decode(&out.NewAlerts)
	if out.PeoplePositions == nil {
		out.PeoplePositions = []Position{}
	}
	if out.NewAlerts == nil {
		out.NewAlerts = []AlertDescriptor{}
	}
	return out
}

// AnalysisResultID is the storage key of the latest result for a camera
func AnalysisResultID(eventID, cameraID string) string {
	return eventID + "_" + cameraID
}

// CrowdDetection is one detected person position, kept for a short window
type CrowdDetection struct {
	ID        string    `gorm:"primaryKey;column:id" json:"id"`
	EventID   string    `gorm:"column:event_id;index:idx_detection_scope" json:"eventId"`
	CameraID  string    `gorm:"column:camera_id;index:idx_detection_scope" json:"cameraId"`
	X         float64   `gorm:"column:x" json:"x"`
	Y         float64   `gorm:"column:y" json:"y"`
	Timestamp time.Time `gorm:"column:timestamp;index" json:"timestamp"`
}

func (CrowdDetection) TableName() string {
	return "crowd_detections"
}

// CrowdAnalyticsPoint is one row of the crowd trend history
type CrowdAnalyticsPoint struct {
	ID        string    `gorm:"primaryKey;column:id" json:"id"`
	EventID   string    `gorm:"column:event_id;index" json:"eventId"`
	Count     int       `gorm:"column:count" json:"count"`
	Timestamp time.Time `gorm:"column:timestamp;index" json:"timestamp"`
}

func (CrowdAnalyticsPoint) TableName() string {
	return "crowd_analytics_history"
}

// Incident model. Camera is a denormalized copy taken at creation time.
type Incident struct {
	ID          string         `gorm:"primaryKey;column:id" json:"id"`
	EventID     string         `gorm:"column:event_id;index" json:"eventId"`
	Type        IncidentType   `gorm:"column:type" json:"type"`
	Severity    Severity       `gorm:"column:severity" json:"severity"`
	Status      IncidentStatus `gorm:"column:status;index" json:"status"`
	Timestamp   time.Time      `gorm:"column:timestamp;index" json:"timestamp"`
	Camera      JSONB          `gorm:"column:camera" json:"camera"`
	AssignedTo  *string        `gorm:"column:assigned_to" json:"assignedTo,omitempty"`
	Description string         `gorm:"column:description" json:"description"`
	SnapshotURL *string        `gorm:"column:snapshot_url" json:"snapshotUrl,omitempty"`
}

func (Incident) TableName() string {
	return "incidents"
}

// CameraSnapshot decodes the denormalized camera
func (i Incident) CameraSnapshot() Camera {
	var cam Camera
	_ = i.Camera.Decode(&cam)
	return cam
}

// Alert is a lightweight notification for one incident
type Alert struct {
	ID             string    `gorm:"primaryKey;column:id" json:"id"`
	EventID        string    `gorm:"column:event_id;index" json:"eventId"`
	IncidentID     string    `gorm:"column:incident_id;index" json:"incidentId"`
	Message        string    `gorm:"column:message" json:"message"`
	Severity       Severity  `gorm:"column:severity" json:"severity"`
	Timestamp      time.Time `gorm:"column:timestamp" json:"timestamp"`
	Acknowledged   bool      `gorm:"column:acknowledged;default:false" json:"acknowledged"`
	AcknowledgedBy *string   `gorm:"column:acknowledged_by" json:"acknowledgedBy,omitempty"`
}

func (Alert) TableName() string {
	return "alerts"
}

// Commander is a responder assigned to a camera
type Commander struct {
	ID               string `gorm:"primaryKey;column:id" json:"id"`
	EventID          string `gorm:"column:event_id;index" json:"eventId"`
	Name             string `gorm:"column:name" json:"name"`
	ContactNumber    string `gorm:"column:contact_number" json:"contactNumber"`
	AssignedCameraID string `gorm:"column:assigned_camera_id" json:"assignedCameraId"`
}

func (Commander) TableName() string {
	return "commanders"
}

// GlobalIoTScope is the scope of the broadcast emergency command
const GlobalIoTScope = "global_command"

// IoTStatus holds the current emergency signal of one scope/camera
type IoTStatus struct {
	Scope     string        `gorm:"primaryKey;column:scope" json:"scope"`
	CameraID  string        `gorm:"primaryKey;column:camera_id" json:"cameraId"`
	Status    EmergencyType `gorm:"column:status" json:"status"`
	UpdatedAt time.Time     `gorm:"column:updated_at" json:"updatedAt"`
}

func (IoTStatus) TableName() string {
	return "iot_status"
}
