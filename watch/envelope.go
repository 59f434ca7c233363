package watch

import (
	"encoding/json"

	"github.com/glbala87/SPARC/errors"
)

// EnvelopeType identifies the kind of a channel message.
type EnvelopeType string

const (
	// EnvelopeProgress carries state, progress fraction and a status message.
	EnvelopeProgress EnvelopeType = "progress"

	// EnvelopeResult carries the structured result payload, implying completion.
	EnvelopeResult EnvelopeType = "result"

	// EnvelopeHeartbeat is a liveness probe from the server. It requires an
	// immediate ping reply on the same channel.
	EnvelopeHeartbeat EnvelopeType = "heartbeat"

	// EnvelopePong acknowledges a previously sent ping. Carries no state.
	EnvelopePong EnvelopeType = "pong"

	// EnvelopePing is the outbound reply to a heartbeat. Never received.
	EnvelopePing EnvelopeType = "ping"
)

// Envelope is one structured message unit carried over the push channel.
type Envelope struct {
	Type     EnvelopeType           `json:"type"`
	JobID    string                 `json:"job_id,omitempty"`
	Progress *float64               `json:"progress,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Status   string                 `json:"status,omitempty"`
	Result   map[string]interface{} `json:"result,omitempty"`
}

// DecodeEnvelope parses and validates a raw inbound frame.
//
// Frames that are not valid JSON, carry an unrecognized type, or report an
// unknown status are rejected with an error wrapping errors.ErrInvalidEnvelope.
// Decode errors are non-fatal: the caller drops the frame and keeps reading.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidEnvelope, err.Error())
	}

	switch env.Type {
	case EnvelopeProgress, EnvelopeResult, EnvelopeHeartbeat, EnvelopePong:
	default:
		return nil, errors.Wrapf(errors.ErrInvalidEnvelope, "unknown message type %q", env.Type)
	}

	if env.Status != "" && !IsValidState(env.Status) {
		return nil, errors.Wrapf(errors.ErrInvalidEnvelope, "unknown status %q", env.Status)
	}

	// Progress is a fraction in [0,1]; out-of-range values are clamped
	// rather than dropped so a sloppy producer cannot stall the record.
	if env.Progress != nil {
		if *env.Progress < 0 {
			*env.Progress = 0
		} else if *env.Progress > 1 {
			*env.Progress = 1
		}
	}

	return &env, nil
}

// Update normalizes a progress or result envelope to the shape the
// Reconciler merges. Heartbeat and pong envelopes produce an empty update.
func (e *Envelope) Update() Update {
	var u Update
	switch e.Type {
	case EnvelopeProgress:
		u.State = JobState(e.Status)
		u.Progress = e.Progress
		u.Message = e.Message
	case EnvelopeResult:
		u.Result = e.Result
	}
	return u
}
