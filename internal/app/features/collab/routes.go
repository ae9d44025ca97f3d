// internal/app/features/collab/routes.go
package collab

import "github.com/go-chi/chi/v5"

// Routes returns a subrouter serving the websocket endpoint (mounted at "/ws").
// Authentication happens inside ServeWS so a rejected handshake never
// reaches the upgrader.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeWS)
	return r
}
