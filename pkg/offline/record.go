// Package offline buffers mutating requests made while the intake API is
// unreachable and replays them in order once connectivity returns.
package offline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vekaria04/hospital-management-system/pkg/intake"
)

// Record is one queued request. Body is replayed byte for byte.
type Record struct {
	ID         string          `json:"id"`
	URL        string          `json:"url"`
	Method     string          `json:"method"`
	Body       json.RawMessage `json:"body"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts,omitempty"`
}

// NewRecord encodes body as JSON and tags it with the target endpoint.
func NewRecord(ep intake.Endpoint, body any) (Record, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Record{}, fmt.Errorf("encode offline body: %w", err)
	}
	return Record{
		ID:         uuid.NewString(),
		URL:        ep.URL,
		Method:     ep.Method,
		Body:       raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}
