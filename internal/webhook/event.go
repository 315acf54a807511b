// Package webhook implements a reconnecting duplex client to an upstream
// event relay that fans decoded events out to registered handlers in
// registration order, isolating each handler's failure.
package webhook

import "encoding/json"

// EventType identifies the family of a decoded event.
type EventType string

const (
	EventPush        EventType = "push"
	EventCheckRun    EventType = "check_run"
	EventCheckSuite  EventType = "check_suite"
	EventDelete      EventType = "delete"
	EventConnPing    EventType = "conn_ping"
)

// Event is the wire format of a relayed webhook frame: an event_type string
// plus an opaque payload whose shape depends on it.
type Event struct {
	EventType EventType       `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// PushPayload is the subset of a GitHub push event the Persistence and
// Config Sync handlers need.
type PushPayload struct {
	Ref        string     `json:"ref"`
	After      string     `json:"after"`
	Repository Repository `json:"repository"`
	HeadCommit *CommitInfo `json:"head_commit"`
}

// Repository is the subset of a webhook's repository object the core cares
// about.
type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	Language      string `json:"language"`
	DefaultBranch string `json:"default_branch"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// CommitInfo is the subset of a webhook's head_commit object the Persistence
// Handler needs.
type CommitInfo struct {
	ID        string   `json:"id"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	Author    Person   `json:"author"`
	Committer Person   `json:"committer"`
	ParentIDs []string `json:"parent_ids"`
}

// Person is the author/committer shape shared by push and commit payloads.
type Person struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CheckRunPayload is the subset of a check_run event the Persistence
// Handler needs.
type CheckRunPayload struct {
	Action     string     `json:"action"`
	Repository Repository `json:"repository"`
	CheckRun   struct {
		HeadSHA    string `json:"head_sha"`
		Name       string `json:"name"`
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
		DetailsURL string `json:"details_url"`
	} `json:"check_run"`
}

// CheckSuitePayload is the subset of a check_suite event the Persistence
// Handler needs.
type CheckSuitePayload struct {
	Action     string     `json:"action"`
	Repository Repository `json:"repository"`
	CheckSuite struct {
		HeadSHA    string `json:"head_sha"`
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
	} `json:"check_suite"`
}

// DeletePayload is the subset of a delete event the Persistence Handler
// needs.
type DeletePayload struct {
	Ref        string     `json:"ref"`
	RefType    string     `json:"ref_type"`
	Repository Repository `json:"repository"`
}
