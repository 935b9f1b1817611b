package models_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/formsync/internal/models"
)

func fmtValue(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

func TestDocumentStringField(t *testing.T) {
	doc := models.Document{
		"xmlFormId": "household_v2",
		"empty":     "",
		"projectId": float64(12),
		"nested":    map[string]interface{}{},
	}

	v, ok := doc.StringField("xmlFormId")
	assert.True(t, ok)
	assert.Equal(t, "household_v2", v)

	v, ok = doc.StringField("projectId")
	assert.True(t, ok)
	assert.Equal(t, "12", v)

	_, ok = doc.StringField("empty")
	assert.False(t, ok)

	_, ok = doc.StringField("nested")
	assert.False(t, ok)

	_, ok = doc.StringField("missing")
	assert.False(t, ok)
}

func TestDocumentStringFieldKeepsNumbersExact(t *testing.T) {
	doc := models.Document{
		"fraction": 12.5,
		"large":    json.Number("9007199254740993"),
		"count":    int64(3),
	}

	v, ok := doc.StringField("fraction")
	assert.True(t, ok)
	assert.Equal(t, "12.5", v)

	v, ok = doc.StringField("large")
	assert.True(t, ok)
	assert.Equal(t, "9007199254740993", v)

	v, ok = doc.StringField("count")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	_, ok = models.Document{"empty": json.Number("")}.StringField("empty")
	assert.False(t, ok)
}

func TestDocumentTag(t *testing.T) {
	syncedAt := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("EAT", 3*3600))
	doc := models.Document{"instanceId": "uuid:1", "name": "visit"}

	tagged := doc.Tag("7", "household_v2", syncedAt)

	assert.Equal(t, "7", tagged[models.FieldProjectID])
	assert.Equal(t, "household_v2", tagged[models.FieldFormID])
	assert.Equal(t, "2024-03-01T09:30:00Z", tagged[models.FieldLastSynced])
	assert.Equal(t, "visit", tagged["name"])

	// Source is untouched
	assert.NotContains(t, doc, models.FieldProjectID)

	form := models.Document{"xmlFormId": "f"}.Tag("7", "", syncedAt)
	assert.NotContains(t, form, models.FieldFormID)
}
