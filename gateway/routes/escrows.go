package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"supplynet/core/types"
	"supplynet/native/escrow"
)

type escrowTransitionFunc func(caller [20]byte, ref [32]byte) (*escrow.Instance, error)

func escrowRefParam(w http.ResponseWriter, r *http.Request) ([32]byte, bool) {
	ref, err := types.ParseEscrowRef(chi.URLParam(r, "ref"))
	if err != nil {
		writeBadRequest(w, err)
		return ref, false
	}
	return ref, true
}

func (s *server) getEscrow(w http.ResponseWriter, r *http.Request) {
	ref, ok := escrowRefParam(w, r)
	if !ok {
		return
	}
	inst, err := s.ledger.Escrow(ref)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, escrowViewFrom(inst))
}

func (s *server) recordEscrowTracking(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	ref, ok := escrowRefParam(w, r)
	if !ok {
		return
	}
	var body trackingBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	evt, err := s.ledger.RecordTrackingEvent(caller, ref, body.StatusText, body.Location)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, trackingViewFrom(evt))
}

func (s *server) escrowTracking(w http.ResponseWriter, r *http.Request) {
	ref, ok := escrowRefParam(w, r)
	if !ok {
		return
	}
	evts, err := s.ledger.EscrowTracking(ref)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": trackingViews(evts)})
}

func (s *server) escrowTransition(transition escrowTransitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		ref, ok := escrowRefParam(w, r)
		if !ok {
			return
		}
		inst, err := transition(caller, ref)
		if err != nil {
			s.writeLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, escrowViewFrom(inst))
	}
}
