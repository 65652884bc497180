package intake

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PatientIDKey is the payload key carrying the patient identifier.
const PatientIDKey = "patientId"

// TempPatientIDPrefix marks a placeholder id created while registration
// itself was offline.
const TempPatientIDPrefix = "temp-"

// SubmitPath is the questionnaire submission endpoint path.
const SubmitPath = "/api/submit-health-questionnaire"

// Payload is the flat submission body: the patient id plus one entry per
// answered field.
type Payload map[string]string

// PatientID returns the patient identifier carried by the payload.
func (p Payload) PatientID() string {
	return p[PatientIDKey]
}

// BuildPayload merges patientID with every answer. Empty answers are kept
// as empty strings; null coercion is the server's job.
func BuildPayload(patientID string, answers Answers) Payload {
	p := make(Payload, len(answers)+1)
	for k, v := range answers {
		p[k] = v
	}
	p[PatientIDKey] = patientID
	return p
}

// TempPatientID returns a placeholder patient id derived from t.
func TempPatientID(t time.Time) string {
	return TempPatientIDPrefix + strconv.FormatInt(t.UnixMilli(), 10)
}

// IsTempPatientID reports whether id is a placeholder from TempPatientID.
func IsTempPatientID(id string) bool {
	rest, ok := strings.CutPrefix(id, TempPatientIDPrefix)
	if !ok || rest == "" {
		return false
	}
	_, err := strconv.ParseInt(rest, 10, 64)
	return err == nil
}

// Endpoint describes where a payload is delivered.
type Endpoint struct {
	URL    string `json:"url"`
	Method string `json:"method"`
}

// SubmitEndpoint returns the questionnaire submission endpoint under baseURL.
func SubmitEndpoint(baseURL string) Endpoint {
	return Endpoint{
		URL:    strings.TrimRight(baseURL, "/") + SubmitPath,
		Method: http.MethodPost,
	}
}
