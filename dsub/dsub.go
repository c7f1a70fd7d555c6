// Package dsub provides the Document Metadata Subscription notification
// collaborator: publishing an event once a PnR transaction completes is the
// only concern modelled here. The pull-point store and subscription
// matching a full DSUB implementation would need are not in scope.
package dsub

import "log"

// Event is published once a PnR transaction reaches Completed, one per
// document entry the envelope carried.
type Event struct {
	CorrelationID string
	DocumentID    string
	FacilityID    string
}

// Publisher notifies subscribers that a new document has been registered.
type Publisher interface {
	Publish(Event)
}

// LogPublisher is the default Publisher, recording the event via the
// standard logger.
type LogPublisher struct{}

// Publish implements Publisher.
func (LogPublisher) Publish(e Event) {
	log.Printf("dsub: NewDocumentRegistered correlationId=%s documentId=%s facilityId=%s", e.CorrelationID, e.DocumentID, e.FacilityID)
}
