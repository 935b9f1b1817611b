package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Collections in the document store.
const (
	CollectionForms       = "forms"
	CollectionSubmissions = "submissions"
)

// Ingest tags added to every mirrored document.
const (
	FieldProjectID  = "project_id"
	FieldFormID     = "form_id"
	FieldLastSynced = "last_synced"
	FieldXMLFormID  = "xmlFormId"
	FieldInstanceID = "instanceId"
)

// Document is a remote JSON object as decoded from the API.
type Document map[string]interface{}

// StringField returns a non-empty string value for key. Numbers keep
// their exact decimal form.
func (d Document) StringField(key string) (string, bool) {
	switch v := d[key].(type) {
	case string:
		return v, v != ""
	case json.Number:
		return v.String(), v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}

// Tag returns a copy of d carrying the ingest fields. formID is omitted when empty.
func (d Document) Tag(projectID, formID string, syncedAt time.Time) Document {
	out := make(Document, len(d)+3)
	for k, v := range d {
		out[k] = v
	}
	out[FieldProjectID] = projectID
	out[FieldLastSynced] = syncedAt.UTC().Format(time.RFC3339)
	if formID != "" {
		out[FieldFormID] = formID
	}
	return out
}
