package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/botforge/chatflow/logger"
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/persistence"
	"go.uber.org/zap"
)

func (s *Server) HandleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var def model.FlowDef
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow definition json")
		return
	}
	defer r.Body.Close()
	if err := s.metadataService.SaveDefinition(def); err != nil {
		logger.Error("error saving flow definition", zap.String("flow", def.Name), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(w, map[string]string{"name": def.Name})
}

func (s *Server) HandleValidateFlow(w http.ResponseWriter, r *http.Request) {
	var def model.FlowDef
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow definition json")
		return
	}
	defer r.Body.Close()
	if err := s.metadataService.ValidateDefinition(def); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(w, map[string]bool{"valid": true})
}

func (s *Server) HandleGetFlow(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	def, err := s.metadataService.GetDefinition(name)
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("error getting flow definition", zap.String("flow", name), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error getting flow definition")
		return
	}
	respondOK(w, def)
}

func (s *Server) HandleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.metadataService.DeleteDefinition(name); err != nil {
		logger.Error("error deleting flow definition", zap.String("flow", name), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error deleting flow definition")
		return
	}
	respondOK(w, map[string]string{"name": name})
}
