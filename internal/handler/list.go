package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/query"
)

// list serves one page of schema's collection. refine adds server-side
// conditions on top of the client's query string.
func (h *Handler) list(w http.ResponseWriter, r *http.Request, schema *query.Schema, refine func(query.Builder) query.Builder) {
	b := query.Standard(schema, r.URL.Query(), h.cfg.DefaultLimit)
	if refine != nil {
		b = refine(b)
	}
	d, err := b.Build()
	if err != nil {
		writeError(w, r, err)
		return
	}

	f, err := h.finders.Finder(schema)
	if err != nil {
		writeError(w, r, errors.Wrapf(err, "finder for %s", schema.Collection))
		return
	}
	res, err := query.Run(r.Context(), f, d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
