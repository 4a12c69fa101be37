package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/BTreeMap/SafeSignal/internal/messaging"
	"github.com/BTreeMap/SafeSignal/internal/models"
)

type inputRequest struct {
	Token     models.InputToken `json:"token"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
}

type triggerRequest struct {
	Silent bool `json:"silent"`
}

type stateResponse struct {
	State          models.EngineState       `json:"state"`
	LastActivation *models.ActivationReport `json:"last_activation,omitempty"`
}

// detached keeps engine work running when the HTTP client goes away; an alert
// must not be abandoned halfway through dispatch.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) inputHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.inputHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if !models.IsValidInputToken(req.Token) {
		// Unknown tokens are ignored rather than rejected.
		slog.Debug("Server.inputHandler: ignoring unknown token", "token", req.Token)
		writeJSONResponse(w, http.StatusOK, models.Ignored("unknown input token"))
		return
	}
	at := s.now()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}
	matched := s.engine.SubmitRawInput(req.Token, at)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]bool{"matched": matched}))
}

func (s *Server) triggerHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req triggerRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.triggerHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
	}
	res, err := s.engine.Trigger(detached(r), models.TriggerManual, req.Silent)
	if err != nil {
		writeError(w, "triggerHandler", err)
		return
	}
	status := http.StatusAccepted
	if res.Activation != nil {
		status = http.StatusCreated
	}
	slog.Info("Server.triggerHandler: manual trigger accepted", "state", res.State.Phase, "silent", req.Silent)
	writeJSONResponse(w, status, models.Success(res))
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(detached(r)); err != nil {
		writeError(w, "cancelHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Emergency cancelled", s.engine.State()))
}

func (s *Server) resolveHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Resolve(detached(r)); err != nil {
		writeError(w, "resolveHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Emergency resolved", s.engine.State()))
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(stateResponse{
		State:          s.engine.State(),
		LastActivation: s.engine.LastActivation(),
	}))
}

func (s *Server) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.ListEvents()
	if err != nil {
		writeError(w, "listEventsHandler", err)
		return
	}
	if events == nil {
		events = []models.SOSEvent{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(events))
}

func (s *Server) getEventHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid event id"))
		return
	}
	ev, err := s.events.GetEvent(id)
	if err != nil {
		writeError(w, "getEventHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(ev))
}

func (s *Server) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.analytics.Report()
	if err != nil {
		writeError(w, "analyticsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}

func (s *Server) listContactsHandler(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.contacts.ListContacts()
	if err != nil {
		writeError(w, "listContactsHandler", err)
		return
	}
	if contacts == nil {
		contacts = []models.EmergencyContact{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(contacts))
}

func (s *Server) saveContactHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var c models.EmergencyContact
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		slog.Warn("Server.saveContactHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	phone, err := messaging.CanonicalizeRecipient(c.PhoneNumber)
	if err != nil {
		writeError(w, "saveContactHandler", err)
		return
	}
	c.PhoneNumber = phone
	saved, err := s.contacts.SaveContact(c)
	if err != nil {
		writeError(w, "saveContactHandler", err)
		return
	}
	slog.Info("Server.saveContactHandler: contact saved", "contactID", saved.ID, "isPrimary", saved.IsPrimary)
	writeJSONResponse(w, http.StatusOK, models.Success(saved))
}

func (s *Server) deleteContactHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.contacts.DeleteContact(id); err != nil {
		writeError(w, "deleteContactHandler", err)
		return
	}
	slog.Info("Server.deleteContactHandler: contact deleted", "contactID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Contact deleted", nil))
}
