package query

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceFinder is a Finder over a fixed slice that records what it was asked.
type sliceFinder struct {
	docs       []Document
	countCalls atomic.Int32
	findErr    error
	countedOn  atomic.Pointer[Descriptor]
}

func (f *sliceFinder) Find(_ context.Context, d Descriptor) ([]Document, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	out, _ := Evaluate(f.docs, d)
	return out, nil
}

func (f *sliceFinder) Count(_ context.Context, d Descriptor) (int64, error) {
	f.countCalls.Add(1)
	f.countedOn.Store(&d)
	_, total := Evaluate(f.docs, d)
	return total, nil
}

func catalog(n int) []Document {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := make([]Document, n)
	for i := range n {
		docs[i] = Document{
			"id":          fmt.Sprintf("p%02d", i+1),
			"title":       fmt.Sprintf("Product %d", i+1),
			"description": "plain item",
			"price":       decimal.NewFromInt(int64((i + 1) * 100)),
			"quantity":    int64(i),
			"colors":      []string{"black"},
			"active":      true,
			"createdAt":   base.Add(time.Duration(i) * time.Hour),
		}
	}
	return docs
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d["id"].(string)
	}
	return out
}

func TestRun_SecondPageOfTwelve(t *testing.T) {
	f := &sliceFinder{docs: catalog(12)}

	d, err := NewBuilder(testSchema, params(t, "page=2&limit=5&sort=createdAt")).
		Filter().Sort().Paginate(10).Build()
	require.NoError(t, err)

	res, err := Run(context.Background(), f, d)
	require.NoError(t, err)

	assert.Equal(t, []string{"p06", "p07", "p08", "p09", "p10"}, ids(res.Documents))
	assert.Equal(t, Metadata{Page: 2, Limit: 5, TotalPages: 3, TotalDocuments: 12}, res.Metadata)

	counted := f.countedOn.Load()
	require.NotNil(t, counted)
	assert.False(t, counted.Paginated(), "count must not be windowed")
}

func TestRun_PriceRange(t *testing.T) {
	f := &sliceFinder{docs: catalog(12)}

	d, err := Standard(testSchema, params(t, "price[gte]=500&price[lte]=1000&sort=price"), 20).Build()
	require.NoError(t, err)

	res, err := Run(context.Background(), f, d)
	require.NoError(t, err)

	assert.Equal(t, []string{"p05", "p06", "p07", "p08", "p09", "p10"}, ids(res.Documents))
	for _, doc := range res.Documents {
		p := doc["price"].(decimal.Decimal)
		assert.True(t, p.GreaterThanOrEqual(decimal.NewFromInt(500)) && p.LessThanOrEqual(decimal.NewFromInt(1000)))
	}
	assert.Equal(t, int64(6), res.Metadata.TotalDocuments)
	assert.Equal(t, 1, res.Metadata.TotalPages)
}

func TestRun_EmptyResult(t *testing.T) {
	f := &sliceFinder{docs: catalog(3)}

	d, err := Standard(testSchema, params(t, "price[gt]=100000"), 10).Build()
	require.NoError(t, err)

	res, err := Run(context.Background(), f, d)
	require.NoError(t, err)
	assert.NotNil(t, res.Documents)
	assert.Empty(t, res.Documents)
	assert.Equal(t, 0, res.Metadata.TotalPages)
	assert.Equal(t, int64(0), res.Metadata.TotalDocuments)
}

func TestRun_FindError(t *testing.T) {
	f := &sliceFinder{docs: catalog(3), findErr: errors.New("boom")}

	d, err := Standard(testSchema, nil, 10).Build()
	require.NoError(t, err)

	_, err = Run(context.Background(), f, d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find products")
}

func TestEvaluate(t *testing.T) {
	docs := catalog(5)
	docs[1]["title"] = "Red SHIRT"
	docs[2]["colors"] = []string{"black", "Crimson"}
	docs[3]["description"] = "a+b (special) .*"

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "default newest first", query: "", want: []string{"p05", "p04", "p03", "p02", "p01"}},
		{name: "search is case insensitive", query: "keyword=shirt", want: []string{"p02"}},
		{name: "search spans set fields", query: "keyword=crimson", want: []string{"p03"}},
		{name: "search is literal", query: "keyword=.*", want: []string{"p04"}},
		{name: "set contains", query: "colors=Crimson", want: []string{"p03"}},
		{name: "any of", query: "id=p01&id=p04&sort=id", want: []string{"p01", "p04"}},
		{name: "integer range", query: "quantity[gt]=1&quantity[lte]=3&sort=quantity", want: []string{"p03", "p04"}},
		{name: "bool equality", query: "active=false", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Standard(testSchema, params(t, tt.query), 10).Build()
			require.NoError(t, err)
			got, total := Evaluate(docs, d)
			assert.Equal(t, tt.want, ids(got))
			assert.Equal(t, int64(len(tt.want)), total)
		})
	}
}

func TestEvaluate_Projection(t *testing.T) {
	d, err := Standard(testSchema, params(t, "fields=title&sort=id&limit=1"), 10).Build()
	require.NoError(t, err)

	got, total := Evaluate(catalog(2), d)
	assert.Equal(t, int64(2), total)
	require.Len(t, got, 1)
	assert.Equal(t, Document{"id": "p01", "title": "Product 1"}, got[0])
}

func TestEvaluate_PageBeyondEnd(t *testing.T) {
	d, err := Standard(testSchema, params(t, "page=9&limit=5"), 10).Build()
	require.NoError(t, err)

	got, total := Evaluate(catalog(12), d)
	assert.Empty(t, got)
	assert.Equal(t, int64(12), total)
}

func TestEvaluate_HugePage(t *testing.T) {
	d, err := Standard(testSchema, params(t, "page=1000000000000000000&limit=10"), 10).Build()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d.Skip(), 0)

	got, total := Evaluate(catalog(12), d)
	assert.Empty(t, got)
	assert.Equal(t, int64(12), total)
}
