package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/store"
	"github.com/n1ghtBl00d/801DoorBot/internal/logging"
)

const (
	defaultInvocationLimit = 50
	maxInvocationLimit     = 500
)

// HealthSource reports gateway readiness.  *health.Tracker satisfies it.
type HealthSource interface {
	Status() healthpb.HealthCheckResponse_ServingStatus
}

type Dependencies struct {
	Logger      *slog.Logger
	Addr        string
	Health      HealthSource
	Invocations store.InvocationStore // nil = /v1/invocations answers 404
}

type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	mux         *http.ServeMux
	health      HealthSource
	invocations store.InvocationStore
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	mux := http.NewServeMux()

	s := &Server{
		logger:      d.Logger,
		mux:         mux,
		health:      d.Health,
		invocations: d.Invocations,
	}

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/invocations", s.handleInvocations)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.health != nil {
		status = s.health.Status()
	}

	code := http.StatusOK
	if status != healthpb.HealthCheckResponse_SERVING {
		code = http.StatusServiceUnavailable
	}

	if wantsProtobuf(r) {
		writeProto(w, code, &healthpb.HealthCheckResponse{Status: status})
		return
	}
	writeJSON(w, code, healthResponse{Status: status.String()})
}

type invocationJSON struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	ChannelID string    `json:"channel_id"`
	GuildID   string    `json:"guild_id,omitempty"`
	InvokedAt time.Time `json:"invoked_at"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
}

type invocationsResponse struct {
	Invocations []invocationJSON `json:"invocations"`
}

func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	if s.invocations == nil {
		writeError(w, http.StatusNotFound, "audit_disabled", "no audit store configured")
		return
	}

	limit := defaultInvocationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxInvocationLimit {
			writeError(w, http.StatusBadRequest, "invalid_limit",
				"limit must be an integer between 1 and "+strconv.Itoa(maxInvocationLimit))
			return
		}
		limit = n
	}

	recs, err := s.invocations.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent invocations query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	resp := invocationsResponse{Invocations: make([]invocationJSON, 0, len(recs))}
	for _, rec := range recs {
		resp.Invocations = append(resp.Invocations, invocationJSON{
			ID:        rec.ID,
			Command:   rec.Command,
			UserID:    rec.UserID,
			UserName:  rec.UserName,
			ChannelID: rec.ChannelID,
			GuildID:   rec.GuildID,
			InvokedAt: rec.InvokedAt.UTC(),
			Outcome:   rec.Outcome,
			Detail:    rec.Detail,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
