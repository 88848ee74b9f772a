package tagging

import "strings"

// Header is one request header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Request is one intercepted outbound request. A nil Headers slice means the
// caller supplied no header set.
type Request struct {
	ContainerID string
	Headers     []Header
}

// Result carries the header set the caller should send.
type Result struct {
	Headers []Header
}

// Outcome classifies how a request was handled.
type Outcome string

const (
	OutcomeSkipped    Outcome = "skipped"
	OutcomeEmitted    Outcome = "emitted"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeUnready    Outcome = "unready"
	OutcomeInvalidID  Outcome = "invalid_id"
)

// Browser-reserved container ids that never participate.
const (
	DefaultContainerID = "firefox-default"
	PrivateContainerID = "firefox-private"
)

// Participates reports whether requests from containerID are tagged.
func Participates(containerID string) bool {
	switch containerID {
	case "", DefaultContainerID, PrivateContainerID:
		return false
	}
	return true
}

// findHeader returns the index of the first header named name, ignoring case.
func findHeader(headers []Header, name string) int {
	for i, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return i
		}
	}
	return -1
}
