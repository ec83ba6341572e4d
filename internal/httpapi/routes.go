package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-matchmaking-backend/internal/broadcast"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/matchmaking"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/presence"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/ws"
)

func SetupRoutes(e *matchmaking.Engine, gw *broadcast.Gateway, gate *presence.Gate, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/queue/status", QueueStatus(e))
	r.Post("/queue/clear", ClearQueue(e, log))
	r.Post("/identity/link", LinkIdentity(gate))
	r.Get("/ws", ws.Handler(e, gw, log))
	return r
}
