package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when the specialization server receives a request.
// The context carries the request id.
type HTTPStart struct {
	Request *http.Request
	Route   string
}

// HTTPFinish is emitted after the handler has written its response.
type HTTPFinish struct {
	Request  *http.Request
	Route    string
	Status   int
	Duration time.Duration
}
