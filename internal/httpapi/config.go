package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/siteconf/internal/apperr"
	"github.com/yanizio/siteconf/internal/auth"
	"github.com/yanizio/siteconf/internal/content"
	"github.com/yanizio/siteconf/internal/middleware"
)

// getConfig composes the document for whoever is asking.
func (a *API) getConfig(w http.ResponseWriter, r *http.Request) {
	comp, err := a.d.Composer.Compose(r.Context(), identityFrom(r).TenantID)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, comp)
}

type saveResponse struct {
	*content.SaveResult
	Error *errorBody `json:"error,omitempty"`
}

// saveConfig persists a bundle.  The target tenant is ?tenant= when given,
// else the caller's own.  Writes never fall back to the hostname.
func (a *API) saveConfig(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.saveConfig"

	user, _ := auth.UserFrom(r.Context())

	var b content.Bundle
	if err := a.decode(w, r, op, &b); err != nil {
		a.writeErr(w, r, err)
		return
	}

	target := r.URL.Query().Get("tenant")
	if target == "" {
		target = user.ConfigID
	}

	res, err := a.d.Saver.Save(r.Context(), user, target, b)
	if res == nil {
		a.writeErr(w, r, err)
		return
	}

	out := saveResponse{SaveResult: res}
	status := http.StatusOK
	if err != nil {
		eb := bodyFor(err)
		out.Error = &eb
		status = apperr.HTTPStatus(apperr.KindOf(err))
		a.log.Warn("save incomplete",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("tenant", target),
			zap.Int("failed", len(res.Failed())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, out)
}
