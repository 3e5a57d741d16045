package handlers

import (
	"net/http"

	"reqmon/internal/logger"
	"reqmon/internal/profile"
)

// ConfigHandler serves the domains monitoring clients should watch
type ConfigHandler struct {
	source profile.Source
}

// NewConfigHandler creates a handler reading from source
func NewConfigHandler(source profile.Source) *ConfigHandler {
	return &ConfigHandler{source: source}
}

// ServeHTTP returns the domain list of the current profile as a JSON array
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	prof, err := h.source.Current()
	if err != nil || prof == nil {
		log := logger.WithRequestID(r.Header.Get("X-Request-ID"))
		log.Error().Err(err).Msg("monitoring profile unavailable")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	domains := prof.Domains
	if domains == nil {
		domains = []string{}
	}
	writeJSON(w, http.StatusOK, domains)
}
