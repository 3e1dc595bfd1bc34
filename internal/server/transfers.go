package server

import (
	"errors"
	"net/http"

	"github.com/Veraticus/banktalk/internal/transfer"
)

type transferActionBody struct {
	AccountID     string `json:"accountId"`
	Term          string `json:"term"`
	BeneficiaryID string `json:"beneficiaryId"`
	Amount        string `json:"amount"`
	Notes         string `json:"notes"`
	ScheduleDate  string `json:"scheduleDate"`
	Code          string `json:"code"`
	Edit          bool   `json:"edit"`
}

func (s *Server) transfersAvailable(w http.ResponseWriter) bool {
	if s.cfg.Sessions == nil || s.cfg.Flow == nil {
		writeError(w, http.StatusServiceUnavailable, "Transfers are not available")
		return false
	}
	return true
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	if !s.transfersAvailable(w) {
		return
	}
	session, err := s.cfg.Sessions.Get(r.Context(), r.PathValue("sid"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	if !s.transfersAvailable(w) {
		return
	}
	sid := r.PathValue("sid")
	mu := s.sessionLock(sid)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.cfg.Sessions.Get(r.Context(), sid); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.cfg.Sessions.Delete(r.Context(), sid); err != nil {
		s.fail(w, r, err)
		return
	}
	s.dropSessionLock(sid)
	w.WriteHeader(http.StatusNoContent)
}

// handleTransferAction applies one step operation to a session. Validation
// failures and failed submissions still persist the session and return it
// alongside the error.
func (s *Server) handleTransferAction(w http.ResponseWriter, r *http.Request) {
	if !s.transfersAvailable(w) {
		return
	}
	var body transferActionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sid := r.PathValue("sid")
	mu := s.sessionLock(sid)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.cfg.Sessions.Get(r.Context(), sid)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	flow := s.cfg.Flow
	action := r.PathValue("action")
	switch action {
	case "account":
		err = flow.SelectAccount(session, body.AccountID)
	case "search":
		err = flow.Search(r.Context(), session, body.Term)
	case "beneficiary":
		err = flow.SelectBeneficiary(session, body.BeneficiaryID)
	case "amount":
		err = flow.EnterAmount(session, transfer.AmountInput{
			Amount:       body.Amount,
			Notes:        body.Notes,
			ScheduleDate: body.ScheduleDate,
		})
	case "confirm":
		err = flow.Confirm(session)
	case "otp":
		if body.Edit {
			flow.EditOTP(session)
		} else {
			err = flow.SubmitOTP(r.Context(), session, body.Code)
		}
	case "back":
		err = flow.Back(session)
	case "reset":
		flow.Reset(session)
	default:
		writeError(w, http.StatusNotFound, "Unknown transfer action "+action)
		return
	}

	var validation *transfer.ValidationError
	persist := err == nil || errors.As(err, &validation) || errors.Is(err, transfer.ErrSubmissionFailed)
	if persist {
		if updateErr := s.cfg.Sessions.Update(r.Context(), session); updateErr != nil {
			s.fail(w, r, updateErr)
			return
		}
	}

	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("Transfer action failed",
				"session_id", sid,
				"action", action,
				"status", status,
				"error", err)
		}
		out := errorBody{Error: messageFor(err, status)}
		if validation != nil {
			out.Field = validation.Field
		}
		if persist {
			out.Session = session
			if errors.Is(err, transfer.ErrSubmissionFailed) {
				out.Error = session.LastError
			}
		}
		writeJSON(w, status, out)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
