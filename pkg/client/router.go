package client

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vekaria04/hospital-management-system/pkg/intake"
	"github.com/vekaria04/hospital-management-system/pkg/offline"
)

// Outcome says where a routed payload went.
type Outcome int

const (
	Submitted Outcome = iota + 1
	Queued
)

func (o Outcome) String() string {
	switch o {
	case Submitted:
		return "submitted"
	case Queued:
		return "queued"
	}
	return "unknown"
}

// Router sends payloads immediately while online and hands them to the
// offline queue otherwise.
type Router struct {
	Client *Client
	Queue  *offline.Queue
	Signal offline.Signal
	Logger zerolog.Logger
}

// Route delivers payload to ep. Offline, the payload is queued verbatim
// with the endpoint's URL and method. Online, a failed delivery is returned
// as ErrSubmissionFailed and nothing is queued.
func (r *Router) Route(ctx context.Context, payload intake.Payload, ep intake.Endpoint) (Outcome, error) {
	if !r.Signal.Online() {
		rec, err := offline.NewRecord(ep, payload)
		if err != nil {
			return 0, err
		}
		if err := r.Queue.Enqueue(ctx, rec); err != nil {
			return 0, err
		}
		r.Logger.Info().Str("patient_id", payload.PatientID()).Str("record_id", rec.ID).Msg("submission queued offline")
		return Queued, nil
	}

	if err := r.Client.do(ctx, ep.Method, ep.URL, payload, nil); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	r.Logger.Info().Str("patient_id", payload.PatientID()).Msg("submission sent")
	return Submitted, nil
}
