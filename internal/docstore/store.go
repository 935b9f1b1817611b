// Package docstore mirrors remote documents into a local or server-side
// document database.
package docstore

import (
	"context"
	"errors"
	"net/url"

	"github.com/TheMichaelB/formsync/internal/models"
)

// ErrUnknownCollection is returned for collections other than forms and submissions.
var ErrUnknownCollection = errors.New("unknown collection")

// Filter identifies a document by exact field matches.
type Filter map[string]string

// key renders the filter as a stable string; keys are sorted.
func (f Filter) key() string {
	v := make(url.Values, len(f))
	for k, val := range f {
		v.Set(k, val)
	}
	return v.Encode()
}

// Store upserts documents by filter. Upsert merges fields into an existing
// match and inserts when none exists; repeating an upsert is a no-op.
type Store interface {
	Upsert(ctx context.Context, collection string, filter Filter, doc models.Document) error
	Get(ctx context.Context, collection string, filter Filter) (models.Document, error)
	Count(ctx context.Context, collection string) (int, error)
	Close() error
}

// Collections lists the collections a store must provide.
var Collections = []string{models.CollectionForms, models.CollectionSubmissions}

func checkCollection(name string) error {
	for _, c := range Collections {
		if c == name {
			return nil
		}
	}
	return &models.StorageError{Op: "collection " + name, Err: ErrUnknownCollection}
}

// FormFilter is the identity of a form within a project.
func FormFilter(projectID, xmlFormID string) Filter {
	return Filter{models.FieldXMLFormID: xmlFormID, models.FieldProjectID: projectID}
}

// SubmissionFilter is the identity of a submission within a project.
func SubmissionFilter(projectID, instanceID string) Filter {
	return Filter{models.FieldInstanceID: instanceID, models.FieldProjectID: projectID}
}

// merge applies $set semantics: doc fields overwrite, the filter is always present.
func merge(existing models.Document, filter Filter, doc models.Document) models.Document {
	out := make(models.Document, len(existing)+len(doc)+len(filter))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range doc {
		out[k] = v
	}
	for k, v := range filter {
		out[k] = v
	}
	return out
}
