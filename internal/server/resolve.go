package server

import (
	"fmt"
	"net/http"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/resolver"
	"github.com/Veraticus/banktalk/internal/rules"
)

type ruleView struct {
	rules.SubmoduleConfig
	Module    model.ModuleCode `json:"moduleCode"`
	Submodule string           `json:"submoduleCode"`
}

func (s *Server) handleListRules(w http.ResponseWriter, _ *http.Request) {
	table := s.cfg.Resolver.Table()
	pairs := table.Pairs()
	out := make([]ruleView, 0, len(pairs))
	for _, p := range pairs {
		cfg, _ := table.Lookup(p.Module, p.Submodule)
		out = append(out, ruleView{SubmoduleConfig: cfg, Module: p.Module, Submodule: p.Submodule})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": table.Version(),
		"rules":   out,
	})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	module := model.ModuleCode(r.PathValue("module"))
	sub := r.PathValue("submodule")
	cfg, ok := s.cfg.Resolver.Table().Lookup(module, sub)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: %s/%s", common.ErrRuleNotFound, module, sub))
		return
	}
	writeJSON(w, http.StatusOK, ruleView{SubmoduleConfig: cfg, Module: module, Submodule: sub})
}

// handleResolve resolves a classification without a conversation. It
// always answers 200 with a renderable resolution.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Response  *model.ClassificationResponse `json:"response"`
		Customer  *model.Customer               `json:"customer"`
		Overrides map[string]any                `json:"overrides"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Response == nil {
		writeError(w, http.StatusBadRequest, "response is required")
		return
	}

	res := resolver.Boundary(func() model.Resolution {
		return s.cfg.Resolver.Resolve(body.Response, body.Customer, body.Overrides)
	})
	writeJSON(w, http.StatusOK, res)
}

// handleAnalytics fetches chart data using the analytics hints of a
// classification.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Analytics == nil {
		writeError(w, http.StatusServiceUnavailable, "Analytics are not available")
		return
	}
	var body struct {
		Response *model.ClassificationResponse `json:"response"`
		UserID   string                        `json:"userId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Response == nil || body.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId and response are required")
		return
	}
	if body.Response.ModuleCode != model.ModuleAnalytics {
		writeError(w, http.StatusBadRequest, "response is not an analytics classification")
		return
	}

	payload, err := s.cfg.Analytics.FetchAnalytics(r.Context(), model.NewAnalyticsRequest(body.UserID, body.Response))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
