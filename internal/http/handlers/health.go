package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	configured := a.Provider != nil && a.Provider.HasCredentials()
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "provider_configured": configured})
}
