package telemetry

import "errors"

// MultiPublisher fans each event out to several publishers. Broadcast always
// reaches every publisher; failures are joined and reported once.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher creates a MultiPublisher over the given publishers.
func NewMultiPublisher(pubs ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: pubs}
}

// Broadcast sends the event to all publishers.
func (mp *MultiPublisher) Broadcast(event string, e Event) error {
	var errs []error
	for _, p := range mp.publishers {
		if err := p.Broadcast(event, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
