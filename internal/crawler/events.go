package crawler

import (
	"encoding/json"
	"time"
)

// EventType names a run progress event on the wire.
type EventType string

// Event types in the order a run produces them.
const (
	EventStart               EventType = "start"
	EventCompanyStart        EventType = "company_start"
	EventCompanyPage         EventType = "company_page"
	EventCompanyFound        EventType = "company_found"
	EventJobFound            EventType = "job_found"
	EventCompanyPageComplete EventType = "company_page_complete"
	EventCompanyComplete     EventType = "company_complete"
	EventCompanyError        EventType = "company_error"
	EventJobsStored          EventType = "jobs_stored"
	EventComplete            EventType = "complete"
	EventError               EventType = "error"
)

// FallbackKind records which synthesized listings replaced real ones.
type FallbackKind string

// Fallback kinds.
const (
	FallbackNone        FallbackKind = ""
	FallbackPlaceholder FallbackKind = "placeholder"
	FallbackMock        FallbackKind = "mock"
)

// Event is one typed progress notification. Only the fields relevant to Type
// are populated; Data selects them for the wire.
type Event struct {
	Type     EventType
	RunID    string
	TS       time.Time
	Company  string
	Index    int
	Total    int
	Page     int
	MaxPages int
	URL      string
	Count    int
	Stored   int
	Job      *JobListing
	Jobs     []JobListing
	Fallback FallbackKind
	Err      string
	Message  string
}

// Data returns the payload carried under "data" for this event type.
func (e Event) Data() map[string]any {
	data := map[string]any{}
	switch e.Type {
	case EventStart:
		data["runId"] = e.RunID
		data["message"] = e.Message
		data["totalCompanies"] = e.Total
	case EventCompanyStart:
		data["company"] = e.Company
		data["index"] = e.Index
		data["total"] = e.Total
		data["url"] = e.URL
	case EventCompanyPage:
		data["company"] = e.Company
		data["page"] = e.Page
		data["maxPages"] = e.MaxPages
		data["url"] = e.URL
	case EventCompanyFound:
		data["company"] = e.Company
		data["page"] = e.Page
		data["count"] = e.Count
		if e.Fallback != FallbackNone {
			data["fallback"] = string(e.Fallback)
		}
	case EventJobFound:
		data["company"] = e.Company
		data["page"] = e.Page
		data["job"] = e.Job
	case EventCompanyPageComplete:
		data["company"] = e.Company
		data["page"] = e.Page
		data["jobsFound"] = e.Count
	case EventCompanyComplete:
		data["company"] = e.Company
		data["jobsFound"] = e.Count
	case EventCompanyError:
		data["company"] = e.Company
		data["error"] = e.Err
		data["jobsFound"] = e.Count
		if len(e.Jobs) > 0 {
			data["jobs"] = e.Jobs
			data["fallback"] = string(e.Fallback)
		}
	case EventJobsStored:
		data["stored"] = e.Stored
		data["total"] = e.Count
		if e.Err != "" {
			data["error"] = e.Err
		}
	case EventComplete:
		data["runId"] = e.RunID
		data["totalJobs"] = e.Count
		data["companies"] = e.Total
		data["stored"] = e.Stored
		data["scrapedAt"] = e.TS
	case EventError:
		data["error"] = e.Err
		if e.Message != "" {
			data["message"] = e.Message
		}
	}
	return data
}

// MarshalJSON renders the {type, data} envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type EventType      `json:"type"`
		Data map[string]any `json:"data"`
	}{Type: e.Type, Data: e.Data()})
}
