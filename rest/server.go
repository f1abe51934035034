package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/botforge/chatflow/logger"
	"github.com/botforge/chatflow/metadata"
	"github.com/botforge/chatflow/service"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port            int
	metadataService metadata.Service
	executorService *service.FlowExecutionService
}

func NewServer(httpPort int, metadataService metadata.Service, executorService *service.FlowExecutionService) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr: fmt.Sprintf(":%d", httpPort),
		},
		metadataService: metadataService,
		executorService: executorService,
		Port:            httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/flow", s.HandleCreateFlow).Methods(http.MethodPost)
	router.HandleFunc("/flow/validate", s.HandleValidateFlow).Methods(http.MethodPost)
	router.HandleFunc("/flow/start", s.HandleStartFlow).Methods(http.MethodPost)
	router.HandleFunc("/flow/{name}", s.HandleGetFlow).Methods(http.MethodGet)
	router.HandleFunc("/flow/{name}", s.HandleDeleteFlow).Methods(http.MethodDelete)
	router.HandleFunc("/event", s.HandleInboundEvent).Methods(http.MethodPost)
	router.HandleFunc("/execution/{flow}/{conversation}", s.HandleGetExecution).Methods(http.MethodGet)
	router.HandleFunc("/execution/{flow}/{conversation}/cancel", s.HandleCancelExecution).Methods(http.MethodPost)
	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, payload interface{}) {
	respondWithJSON(w, http.StatusOK, payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
