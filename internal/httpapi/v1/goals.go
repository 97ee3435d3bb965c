package v1

import (
	"net/http"

	"github.com/tinoosan/fintrack/internal/ledger"
)

func (s *Server) postGoal(w http.ResponseWriter, r *http.Request) {
	var req postGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	target, err := s.parseAmount("target_amount", req.TargetAmount)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	g, err := s.accountSvc.CreateGoal(r.Context(), ledger.Goal{UserID: ownerOf(r), Name: req.Name, TargetAmount: target})
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toGoalResponse(g))
}

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	list, err := s.accountSvc.ListGoals(r.Context(), ownerOf(r))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	out := make([]goalResponse, 0, len(list))
	for _, g := range list {
		out = append(out, toGoalResponse(g))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "goal")
	if !ok {
		return
	}
	g, err := s.accountSvc.GetGoal(r.Context(), ownerOf(r), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toGoalResponse(g))
}
