package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONStdoutPublisher prints each event as a JSON line to STDOUT.
type JSONStdoutPublisher struct {
	out io.Writer
}

// NewJSONStdoutPublisher creates a JSONStdoutPublisher writing to os.Stdout.
func NewJSONStdoutPublisher() *JSONStdoutPublisher {
	return &JSONStdoutPublisher{out: os.Stdout}
}

// Broadcast outputs the event in JSON format.
func (p *JSONStdoutPublisher) Broadcast(event string, e Event) error {
	data, _ := json.Marshal(e)
	fmt.Fprintln(p.out, string(data))
	return nil
}
