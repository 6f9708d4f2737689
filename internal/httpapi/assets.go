package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// getAsset serves one asset with cache headers.  A matching If-None-Match
// short-circuits to 304.
func (a *API) getAsset(w http.ResponseWriter, r *http.Request) {
	as, err := a.d.Assets.Get(r.Context(), chi.URLParam(r, "*"), r.URL.Query().Get("v"), identityFrom(r))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Cache-Control", as.CacheControl)
	h.Set("ETag", as.ETag)
	if !as.LastModified.IsZero() {
		h.Set("Last-Modified", as.LastModified.UTC().Format(http.TimeFormat))
	}
	if as.Matches(r.Header.Get("If-None-Match")) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Type", as.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(as.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(as.Data)
}
