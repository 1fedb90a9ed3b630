package workflow

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"nadaapi/intent"
	"nadaapi/models"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string {
	return &s
}

func TestRequestConfirmationArmsSingleUseToken(t *testing.T) {
	session := &models.WorkflowSession{Status: StatusIdle}

	token, err := RequestConfirmation(session, ActionGenerate, CostGenerateCredits)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, StatusConfirming, session.Status)
	assert.Equal(t, CostGenerateCredits, session.EstimatedCostCredits)
	assert.Equal(t, ActionGenerate, *session.PendingAction)

	// a second costed action cannot be armed while one is pending
	_, err = RequestConfirmation(session, ActionEdit, CostEditCredits)
	assert.ErrorIs(t, err, ErrActionPending)
}

func TestConfirmValidatesToken(t *testing.T) {
	session := &models.WorkflowSession{Status: StatusIdle}
	token, _ := RequestConfirmation(session, ActionGenerate, CostGenerateCredits)

	_, err := Confirm(session, "wrong-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, StatusConfirming, session.Status)

	_, err = Confirm(session, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	action, err := Confirm(session, token)
	assert.NoError(t, err)
	assert.Equal(t, ActionGenerate, action)
	assert.Equal(t, StatusGenerating, session.Status)
	assert.Nil(t, session.PendingAction)

	// the token is single use: replaying it is rejected
	_, err = Confirm(session, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConfirmTryOnEntersTryOnGenerating(t *testing.T) {
	session := &models.WorkflowSession{Status: StatusGenerated}
	token, err := RequestConfirmation(session, ActionTryOn, CostTryOnCredits)
	assert.NoError(t, err)
	assert.Equal(t, StatusTryOnConfirming, session.Status)

	action, err := Confirm(session, token)
	assert.NoError(t, err)
	assert.Equal(t, ActionTryOn, action)
	assert.Equal(t, StatusTryOnGenerating, session.Status)
}

func TestCancelBeforeConfirmRefundsNothing(t *testing.T) {
	session := &models.WorkflowSession{Status: StatusIdle}
	RequestConfirmation(session, ActionGenerate, CostGenerateCredits)

	refund := Cancel(session)
	assert.Equal(t, 0, refund)
	assert.Equal(t, StatusIdle, session.Status)
	assert.Nil(t, session.PendingAction)
	assert.Nil(t, session.ConfirmationToken)
	assert.Equal(t, 0, session.EstimatedCostCredits)
}

func TestCancelInFlightRefundsCharge(t *testing.T) {
	session := &models.WorkflowSession{Status: StatusIdle}
	token, _ := RequestConfirmation(session, ActionGenerate, CostGenerateCredits)
	_, err := Confirm(session, token)
	assert.NoError(t, err)
	session.ChargedCredits = CostGenerateCredits

	refund := Cancel(session)
	assert.Equal(t, CostGenerateCredits, refund)
	assert.Equal(t, StatusIdle, session.Status)
	assert.Equal(t, 0, session.ChargedCredits)
}

func TestCancelEditFallsBackToGenerated(t *testing.T) {
	session := &models.WorkflowSession{Status: StatusGenerated}
	RequestConfirmation(session, ActionEdit, CostEditCredits)

	Cancel(session)
	assert.Equal(t, StatusGenerated, session.Status)
}

func TestCancelCollectingReturnsToIdle(t *testing.T) {
	session := &models.WorkflowSession{Status: StatusCollecting}
	refund := Cancel(session)
	assert.Equal(t, 0, refund)
	assert.Equal(t, StatusIdle, session.Status)
}

func TestFailInFlightRevertsAndKeepsErrorCode(t *testing.T) {
	session := &models.WorkflowSession{
		Status:         StatusEditing,
		ChargedCredits: CostEditCredits,
	}

	refund := FailInFlight(session, ErrCodeTimeout)
	assert.Equal(t, CostEditCredits, refund)
	assert.Equal(t, StatusGenerated, session.Status)
	assert.Equal(t, 0, session.ChargedCredits)
	assert.Equal(t, ErrCodeTimeout, *session.ErrorCode)

	// outside an in-flight status it is a no-op
	refund = FailInFlight(session, ErrCodeUnknown)
	assert.Equal(t, 0, refund)
	assert.Equal(t, ErrCodeTimeout, *session.ErrorCode)
}

func TestAbsorbFieldsNeverOverwrites(t *testing.T) {
	session := &models.WorkflowSession{Status: StatusCollecting, Occasion: strPtr("boda")}

	AbsorbFields(session, intent.LookFields{Occasion: "fiesta", Style: "formal"})
	assert.Equal(t, "boda", *session.Occasion)
	assert.Equal(t, "formal", *session.Style)
	assert.Equal(t, []string{intent.SlotCategory}, []string(session.MissingFields))

	AbsorbFields(session, intent.LookFields{Category: intent.CategoryTop})
	assert.Empty(t, []string(session.MissingFields))
	assert.Equal(t, "", NextMissingField(session))
}

func TestDeriveViewState(t *testing.T) {
	session := &models.WorkflowSession{Status: StatusConfirming, PendingAction: strPtr(ActionEdit)}
	view := DeriveViewState(session)
	assert.True(t, view.ShowCostConfirmation)
	assert.True(t, view.EditPanelOpen)
	assert.False(t, view.Busy)

	session = &models.WorkflowSession{Status: StatusTryOnGenerating}
	view = DeriveViewState(session)
	assert.True(t, view.TryOnPanelOpen)
	assert.True(t, view.Busy)
	assert.False(t, view.ShowCostConfirmation)

	session = &models.WorkflowSession{Status: StatusGenerated, TryOnResultImageURL: strPtr("tryons/tryon-1.png")}
	view = DeriveViewState(session)
	assert.True(t, view.TryOnPanelOpen)
	assert.False(t, view.Busy)

	session = &models.WorkflowSession{Status: StatusGenerated}
	view = DeriveViewState(session)
	assert.False(t, view.TryOnPanelOpen)
}

func TestMapProviderError(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, MapProviderError(context.DeadlineExceeded, 0))
	assert.Equal(t, ErrCodeRateLimited, MapProviderError(nil, http.StatusTooManyRequests))
	assert.Equal(t, ErrCodeServiceUnavailable, MapProviderError(nil, http.StatusBadGateway))
	assert.Equal(t, ErrCodeRateLimited, MapProviderError(errors.New("RESOURCE_EXHAUSTED: quota exceeded"), 0))
	assert.Equal(t, ErrCodeNotConfigured, MapProviderError(errors.New("missing GOOGLE_API_KEY api key"), 0))
	assert.Equal(t, ErrCodeNetworkError, MapProviderError(errors.New("dial tcp: no such host"), 0))
	assert.Equal(t, ErrCodeUnknown, MapProviderError(errors.New("something odd"), 0))

	assert.True(t, IsUpgradeNudge(ErrCodeInsufficientCredits))
	assert.False(t, IsUpgradeNudge(ErrCodeTimeout))
}
