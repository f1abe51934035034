package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/botforge/chatflow/engine"
	"github.com/botforge/chatflow/logger"
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/persistence"
	"go.uber.org/zap"
)

func (s *Server) HandleInboundEvent(w http.ResponseWriter, r *http.Request) {
	var event model.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid event json")
		return
	}
	defer r.Body.Close()
	result, err := s.executorService.HandleInbound(&event)
	if err != nil {
		logger.Error("error handling inbound event",
			zap.String("conversation", event.ConversationId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error handling inbound event")
		return
	}
	respondOK(w, result)
}

func (s *Server) HandleStartFlow(w http.ResponseWriter, r *http.Request) {
	var req model.StartFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid start request json")
		return
	}
	defer r.Body.Close()
	result, err := s.executorService.StartFlow(&req)
	if err != nil {
		if errors.Is(err, engine.ErrExecutionActive) {
			respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("error starting flow", zap.String("flow", req.FlowName), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error starting flow")
		return
	}
	respondOK(w, result)
}

func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	flowCtx, err := s.executorService.GetExecution(vars["flow"], vars["conversation"])
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("error getting execution", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error getting execution")
		return
	}
	respondOK(w, flowCtx)
}

func (s *Server) HandleCancelExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := s.executorService.Cancel(vars["flow"], vars["conversation"])
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("error cancelling execution", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error cancelling execution")
		return
	}
	respondOK(w, result)
}
