package query

import (
	"context"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"
)

// Document is a projected record keyed by schema field names.
type Document map[string]any

// Finder executes descriptors against a collection.
type Finder interface {
	// Find returns the documents selected by d, honouring its window,
	// ordering and projection.
	Find(ctx context.Context, d Descriptor) ([]Document, error)
	// Count returns the number of documents matching d's conditions and
	// search. Callers pass d.Unpaginated().
	Count(ctx context.Context, d Descriptor) (int64, error)
}

// Metadata is the pagination summary of a list response.
type Metadata struct {
	Page           int   `json:"page"`
	Limit          int   `json:"limit"`
	TotalPages     int   `json:"totalPages"`
	TotalDocuments int64 `json:"totalDocuments"`
}

// Result is one page of documents plus its metadata.
type Result struct {
	Documents []Document `json:"documents"`
	Metadata  Metadata   `json:"metadata"`
}

// Run counts the matching documents and fetches the requested page
// concurrently. The count always uses the unpaginated descriptor.
func Run(ctx context.Context, f Finder, d Descriptor) (*Result, error) {
	var (
		docs  []Document
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := f.Count(gctx, d.Unpaginated())
		if err != nil {
			return errors.Wrapf(err, "count %s", d.schema.Collection)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		found, err := f.Find(gctx, d)
		if err != nil {
			return errors.Wrapf(err, "find %s", d.schema.Collection)
		}
		docs = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if docs == nil {
		docs = []Document{}
	}
	return &Result{
		Documents: docs,
		Metadata:  d.Metadata(total),
	}, nil
}
