package workflow

import "nadaapi/models"

// ViewState is the UI-facing projection of a session snapshot. It is
// computed once per snapshot update so the panels can never disagree with
// the session status they were derived from.
type ViewState struct {
	// edit panel: open while an edit is being confirmed or applied
	EditPanelOpen bool `json:"edit_panel_open"`
	// try-on panel: open through the whole try-on sub-workflow and while
	// a result is available
	TryOnPanelOpen bool `json:"try_on_panel_open"`
	// cost dialog: the explicit confirmation step for any costed action
	ShowCostConfirmation bool `json:"show_cost_confirmation"`
	// submissions disabled while a provider call is outstanding
	Busy bool `json:"busy"`
}

func DeriveViewState(session *models.WorkflowSession) ViewState {
	view := ViewState{
		ShowCostConfirmation: IsConfirmingStatus(session.Status),
		Busy:                 IsGeneratingStatus(session.Status),
	}
	switch session.Status {
	case StatusConfirming:
		view.EditPanelOpen = session.PendingAction != nil && *session.PendingAction == ActionEdit
	case StatusEditing:
		view.EditPanelOpen = true
	case StatusTryOnConfirming, StatusTryOnGenerating:
		view.TryOnPanelOpen = true
	case StatusGenerated:
		view.TryOnPanelOpen = session.TryOnResultImageURL != nil
	}
	return view
}
