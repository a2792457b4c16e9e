package types

// Alert is the structured payload sent to the platform's alert endpoint when
// an incident is confirmed. Context fields resolved from the directory are
// omitted when their lookup missed; an alert is still emitted with whatever
// context could be gathered.
type Alert struct {
	Type            string  `json:"type"`
	Severity        string  `json:"severity"`
	Title           string  `json:"title"`
	Message         string  `json:"message"`
	SensorID        string  `json:"sensorId"`
	SensorName      string  `json:"sensorName,omitempty"`
	HiveID          string  `json:"hiveId,omitempty"`
	HiveName        string  `json:"hiveName,omitempty"`
	FarmID          string  `json:"farmId,omitempty"`
	FarmName        string  `json:"farmName,omitempty"`
	Predator        string  `json:"predator,omitempty"`
	Confidence      float64 `json:"confidence"`
	ImageID         string  `json:"imageId,omitempty"`
	DetectionMethod string  `json:"detectionMethod,omitempty"`
	// Timestamp is RFC 3339 UTC, captured when the alert is built
	Timestamp string `json:"timestamp"`
}
