// Package audit provides the ATNA-style audit record collaborator: emitting
// a record at each external call boundary the orchestrator crosses. The
// node-authentication transport a full ATNA implementation would need is
// not modelled here - only the record shape and emission point.
package audit

import "log"

// EventType distinguishes the three security-relevant call boundaries the
// orchestrator crosses.
type EventType string

// Event types emitted by the orchestrator.
const (
	PIXRequest      EventType = "PIX_REQUEST"
	PIXIdentityFeed EventType = "PIX_IDENTITY_FEED"
	XDSRegister     EventType = "XDS_REGISTER"
)

// Event is one ATNA audit record.
type Event struct {
	Type          EventType
	PatientIDs    []string
	CorrelationID string
	Outcome       string
}

// Emitter records a security-relevant event.
type Emitter interface {
	Emit(Event)
}

// LogEmitter is the default Emitter, recording the event via the standard
// logger.
type LogEmitter struct{}

// Emit implements Emitter.
func (LogEmitter) Emit(e Event) {
	log.Printf("atna: type=%s correlationId=%s patientIds=%v outcome=%s", e.Type, e.CorrelationID, e.PatientIDs, e.Outcome)
}
