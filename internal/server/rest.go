package server

import (
	"encoding/json"
	"net/http"

	"github.com/goevery/relay/internal/handler"
	"github.com/goevery/relay/internal/ierr"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type SuccessResponse struct {
	Success bool `json:"success"`
	Message any  `json:"message,omitempty"`
	Queued  bool `json:"queued,omitempty"`
}

type RESTServer struct {
	logger        *zap.Logger
	originChecker *OriginChecker

	healthHandler          handler.HealthHandlerInterface
	messageHandler         handler.MessageHandlerInterface
	systemBroadcastHandler handler.SystemBroadcastHandlerInterface
	publishEventHandler    handler.PublishEventHandlerInterface
	notificationHandler    handler.NotificationHandlerInterface
}

func NewRESTServer(
	logger *zap.Logger,
	originChecker *OriginChecker,
	healthHandler handler.HealthHandlerInterface,
	messageHandler handler.MessageHandlerInterface,
	systemBroadcastHandler handler.SystemBroadcastHandlerInterface,
	publishEventHandler handler.PublishEventHandlerInterface,
	notificationHandler handler.NotificationHandlerInterface,
) *RESTServer {
	return &RESTServer{
		logger,
		originChecker,
		healthHandler,
		messageHandler,
		systemBroadcastHandler,
		publishEventHandler,
		notificationHandler,
	}
}

// Register mounts the API on router, which is expected to carry the /api
// prefix.
func (s *RESTServer) Register(router *mux.Router) {
	router.Use(s.cors)

	router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	router.HandleFunc("/message", s.message).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/messages/broadcast", s.systemBroadcast).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/events/publish", s.publishEvent).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/notifications", s.notify).Methods(http.MethodPost, http.MethodOptions)
}

func (s *RESTServer) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.healthHandler.Handle())
}

func (s *RESTServer) message(w http.ResponseWriter, r *http.Request) {
	var req handler.MessageRequest
	if !s.decode(w, r, &req) {
		return
	}

	msg, err := s.messageHandler.Handle(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: msg})
}

func (s *RESTServer) systemBroadcast(w http.ResponseWriter, r *http.Request) {
	var req handler.MessageRequest
	if !s.decode(w, r, &req) {
		return
	}

	msg, err := s.systemBroadcastHandler.Handle(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: msg})
}

func (s *RESTServer) publishEvent(w http.ResponseWriter, r *http.Request) {
	var req handler.PublishEventRequest
	if !s.decode(w, r, &req) {
		return
	}

	_, err := s.publishEventHandler.Handle(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Event published"})
}

func (s *RESTServer) notify(w http.ResponseWriter, r *http.Request) {
	var req handler.NotificationRequest
	if !s.decode(w, r, &req) {
		return
	}

	response, err := s.notificationHandler.Handle(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, SuccessResponse{Success: true, Queued: response.Queued})
}

func (s *RESTServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.originChecker.AllowedOrigin())
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *RESTServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		s.writeError(w, ierr.InvalidArgument("No data provided"))
		return false
	}

	return true
}

func (s *RESTServer) writeError(w http.ResponseWriter, err error) {
	code := ierr.CodeOf(err)
	if code == ierr.ErrorCodeInternal {
		s.logger.Error("failed to handle api request", zap.Error(err))
	}

	s.writeJSON(w, ierr.HTTPStatus(code), map[string]string{"error": ierr.ReasonOf(err)})
}

func (s *RESTServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
