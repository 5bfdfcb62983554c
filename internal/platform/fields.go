package platform

import (
	"encoding/json"
	"strconv"
	"time"
)

// EventRequest is the read-only shape the platform returns from its
// listing endpoint. It is never persisted as-is; pull copies the fields
// it needs into a local IntakeRecord.
//
// The platform's field naming has drifted release to release, so every
// field is extracted through an explicit ordered fallback chain (first
// present key wins) rather than a fixed struct decode. The chains below
// document the precedence.
type EventRequest struct {
	ID            string
	Status        string
	OrgName       string
	ContactName   string
	ContactEmail  string
	ContactPhone  string
	SandwichCount int
	Logistics     string
	EventDate     *time.Time
}

// Fallback chains, newest naming first.
var (
	idKeys        = []string{"id", "eventId", "event_id", "requestId"}
	statusKeys    = []string{"status", "state"}
	orgKeys       = []string{"organizationName", "organization", "orgName", "org"}
	nameKeys      = []string{"contactName", "contact_name", "requesterName", "name"}
	emailKeys     = []string{"contactEmail", "contact_email", "email"}
	phoneKeys     = []string{"contactPhone", "contact_phone", "phone"}
	countKeys     = []string{"sandwichCount", "sandwich_count", "estimatedSandwiches", "count"}
	logisticsKeys = []string{"logistics", "deliveryNotes", "delivery_notes"}
	dateKeys      = []string{"eventDate", "event_date", "date", "scheduledDate"}
)

func parseEventRequest(item map[string]json.RawMessage) *EventRequest {
	return &EventRequest{
		ID:            stringField(item, idKeys...),
		Status:        stringField(item, statusKeys...),
		OrgName:       stringField(item, orgKeys...),
		ContactName:   stringField(item, nameKeys...),
		ContactEmail:  stringField(item, emailKeys...),
		ContactPhone:  stringField(item, phoneKeys...),
		SandwichCount: intField(item, countKeys...),
		Logistics:     stringField(item, logisticsKeys...),
		EventDate:     dateField(item, dateKeys...),
	}
}

// stringField returns the first present, non-empty string among keys.
// Numeric ids arrive as JSON numbers from some releases and are
// stringified.
func stringField(item map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := item[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	return ""
}

// intField returns the first present integer among keys, accepting both
// JSON numbers and numeric strings.
func intField(item map[string]json.RawMessage, keys ...string) int {
	for _, key := range keys {
		raw, ok := item[key]
		if !ok {
			continue
		}
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			return n
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if parsed, err := strconv.Atoi(s); err == nil {
				return parsed
			}
		}
	}
	return 0
}

// dateField returns the first present parseable date among keys.
// Accepts RFC3339 and bare YYYY-MM-DD.
func dateField(item map[string]json.RawMessage, keys ...string) *time.Time {
	for _, key := range keys {
		raw, ok := item[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return &t
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return &t
		}
	}
	return nil
}
