package workflow

import (
	"errors"

	"nadaapi/models"

	"github.com/google/uuid"
)

var (
	// ErrActionPending is returned when a new costed action is requested
	// while another one is still awaiting confirmation or running.
	ErrActionPending = errors.New("another action is pending, confirm or cancel it first")
	// ErrInvalidToken is returned for stale, mismatched or replayed
	// confirmation tokens.
	ErrInvalidToken = errors.New("invalid confirmation token")
)

// RequestConfirmation arms a costed action: moves the session into the
// matching *_confirming status with a fresh single-use token bound to
// (session, action, cost). The cost must be shown to the user before the
// ledger is ever touched.
func RequestConfirmation(session *models.WorkflowSession, action string, costCredits int) (string, error) {
	if session.PendingAction != nil || IsGeneratingStatus(session.Status) {
		return "", ErrActionPending
	}
	token := uuid.NewString()
	pendingAction := action
	session.PendingAction = &pendingAction
	session.ConfirmationToken = &token
	session.EstimatedCostCredits = costCredits
	session.Status = ConfirmingStatusFor(action)
	session.ErrorCode = nil
	return token, nil
}

// Confirm validates the token against the current session state and, on
// success, clears it and moves the session to the in-flight status
// immediately, before any provider call, so a repeated confirm is rejected
// instead of charging twice. Returns the confirmed action.
func Confirm(session *models.WorkflowSession, token string) (string, error) {
	if session.PendingAction == nil || session.ConfirmationToken == nil {
		return "", ErrInvalidToken
	}
	action := *session.PendingAction
	if session.Status != ConfirmingStatusFor(action) {
		return "", ErrInvalidToken
	}
	if token == "" || token != *session.ConfirmationToken {
		return "", ErrInvalidToken
	}
	session.ConfirmationToken = nil
	session.PendingAction = nil
	session.Status = GeneratingStatusFor(action)
	session.ErrorCode = nil
	return action, nil
}

// Cancel aborts the pending or in-flight action and returns the session to
// its prior stable status. It is synchronous with respect to local state:
// no network round trip is required. The returned amount is what the
// ledger already charged and must now refund (zero before confirm).
func Cancel(session *models.WorkflowSession) int {
	action := ""
	if session.PendingAction != nil {
		action = *session.PendingAction
	} else if IsGeneratingStatus(session.Status) {
		action = InFlightAction(session.Status)
	}

	refund := session.ChargedCredits
	session.PendingAction = nil
	session.ConfirmationToken = nil
	session.EstimatedCostCredits = 0
	session.ChargedCredits = 0

	switch {
	case action != "":
		session.Status = PriorStableStatus(action)
	case session.Status == StatusCollecting || session.Status == StatusChoosingMode:
		session.Status = StatusIdle
	}
	return refund
}

// FailInFlight reverts a session stuck in a *_generating status after a
// provider failure or timeout: back to the prior stable status with the
// taxonomy code set. Returns the charged amount to refund.
func FailInFlight(session *models.WorkflowSession, errorCode string) int {
	if !IsGeneratingStatus(session.Status) {
		return 0
	}
	action := InFlightAction(session.Status)
	refund := session.ChargedCredits
	session.ChargedCredits = 0
	session.EstimatedCostCredits = 0
	session.Status = PriorStableStatus(action)
	session.ErrorCode = &errorCode
	return refund
}
