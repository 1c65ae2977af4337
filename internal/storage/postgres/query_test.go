package postgres

import (
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/query"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name       string
		params     url.Values
		wantWhere  string
		wantOrder  string
		wantWindow string
		wantArgs   []any
	}{
		{
			name:       "defaults",
			params:     url.Values{},
			wantOrder:  ` ORDER BY "created_at" DESC NULLS LAST, "id" ASC NULLS FIRST`,
			wantWindow: ` LIMIT $1 OFFSET $2`,
			wantArgs:   []any{20, 0},
		},
		{
			name:       "range on money",
			params:     url.Values{"price[gte]": {"500"}, "price[lte]": {"1000"}, "sort": {"price"}},
			wantWhere:  ` WHERE "price" >= $1 AND "price" <= $2`,
			wantOrder:  ` ORDER BY "price" ASC NULLS FIRST, "id" ASC NULLS FIRST`,
			wantWindow: ` LIMIT $3 OFFSET $4`,
			wantArgs:   []any{decimal.NewFromInt(500), decimal.NewFromInt(1000), 20, 0},
		},
		{
			name:       "set membership and in",
			params:     url.Values{"colors": {"red"}, "id": {"a", "b"}, "sort": {"-sold"}, "page": {"3"}, "limit": {"5"}},
			wantWhere:  ` WHERE $1 = ANY("colors") AND "id" IN ($2, $3)`,
			wantOrder:  ` ORDER BY "sold" DESC NULLS LAST, "id" ASC NULLS FIRST`,
			wantWindow: ` LIMIT $4 OFFSET $5`,
			wantArgs:   []any{"red", "a", "b", 5, 10},
		},
		{
			name:   "keyword search escapes wildcards",
			params: url.Values{"keyword": {"50%_off"}, "sort": {"title"}},
			wantWhere: ` WHERE ("title" ILIKE $1 OR "description" ILIKE $1 OR ` +
				`EXISTS (SELECT 1 FROM unnest("colors") AS v WHERE v ILIKE $1))`,
			wantOrder:  ` ORDER BY "title" ASC NULLS FIRST, "id" ASC NULLS FIRST`,
			wantWindow: ` LIMIT $2 OFFSET $3`,
			wantArgs:   []any{`%50\%\_off%`, 20, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := query.Standard(product.Schema, tt.params, query.DefaultLimit).Build()
			require.NoError(t, err)

			c := compile(d)
			assert.Equal(t, tt.wantWhere, c.where)
			assert.Equal(t, tt.wantOrder, c.orderBy)
			assert.Equal(t, tt.wantWindow, c.window)
			require.Len(t, c.args, len(tt.wantArgs))
			for i, want := range tt.wantArgs {
				if wantDec, ok := want.(decimal.Decimal); ok {
					got, ok := c.args[i].(decimal.Decimal)
					require.True(t, ok)
					assert.True(t, wantDec.Equal(got))
					continue
				}
				assert.Equal(t, want, c.args[i])
			}
		})
	}
}

func TestCompile_CountIgnoresWindow(t *testing.T) {
	d, err := query.Standard(product.Schema, url.Values{"quantity[gt]": {"0"}}, query.DefaultLimit).Build()
	require.NoError(t, err)

	c := compile(d.Unpaginated())
	assert.Equal(t, ` WHERE "quantity" > $1`, c.where)
	assert.Empty(t, c.orderBy)
	assert.Empty(t, c.window)
	assert.Equal(t, []any{int64(0)}, c.args)
}
