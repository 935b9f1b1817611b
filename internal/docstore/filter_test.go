package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/formsync/internal/models"
)

func TestFilterKeyIsStable(t *testing.T) {
	a := Filter{"project_id": "7", "xmlFormId": "a&b=c"}
	b := Filter{"xmlFormId": "a&b=c", "project_id": "7"}

	assert.Equal(t, a.key(), b.key())
	assert.NotEqual(t, a.key(), Filter{"project_id": "7&xmlFormId=a"}.key())
}

func TestMergeKeepsFilterFields(t *testing.T) {
	existing := models.Document{"name": "old", "extra": 1}
	out := merge(existing, Filter{"project_id": "7"}, models.Document{"name": "new", "project_id": "9"})

	assert.Equal(t, "new", out["name"])
	assert.Equal(t, 1, out["extra"])
	assert.Equal(t, "7", out["project_id"])
	assert.Equal(t, "old", existing["name"])
}
