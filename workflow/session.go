package workflow

import (
	"nadaapi/intent"
	"nadaapi/models"

	"github.com/lib/pq"
)

// Session statuses. idle is both the initial status and the recoverable
// fallback after cancellation or failure; generated is the per-turn
// terminal status from which edit and try-on sub-workflows loop.
const (
	StatusIdle            = "idle"
	StatusCollecting      = "collecting"
	StatusChoosingMode    = "choosing_mode"
	StatusConfirming      = "confirming"
	StatusGenerating      = "generating"
	StatusEditing         = "editing"
	StatusTryOnConfirming = "tryon_confirming"
	StatusTryOnGenerating = "tryon_generating"
	StatusGenerated       = "generated"
)

const (
	StrategyDirect = "direct"
	StrategyGuided = "guided"
)

// Costed actions.
const (
	ActionGenerate = "generate"
	ActionEdit     = "edit"
	ActionTryOn    = "tryon"
)

// Credit prices per action.
const (
	CostGenerateCredits = 5
	CostEditCredits     = 3
	CostTryOnCredits    = 10
)

func ActionCost(action string) int {
	switch action {
	case ActionEdit:
		return CostEditCredits
	case ActionTryOn:
		return CostTryOnCredits
	default:
		return CostGenerateCredits
	}
}

// ConfirmingStatusFor returns the *_confirming variant the action waits in.
// Generate and edit share the confirming status; the pending action keeps
// them apart.
func ConfirmingStatusFor(action string) string {
	if action == ActionTryOn {
		return StatusTryOnConfirming
	}
	return StatusConfirming
}

// GeneratingStatusFor returns the in-flight status entered after confirm.
func GeneratingStatusFor(action string) string {
	switch action {
	case ActionEdit:
		return StatusEditing
	case ActionTryOn:
		return StatusTryOnGenerating
	default:
		return StatusGenerating
	}
}

// PriorStableStatus is where the session falls back to when the action is
// cancelled or the provider fails. Only the first generation falls back to
// idle; edit and try-on keep the already generated item.
func PriorStableStatus(action string) string {
	if action == ActionGenerate {
		return StatusIdle
	}
	return StatusGenerated
}

func IsConfirmingStatus(status string) bool {
	return status == StatusConfirming || status == StatusTryOnConfirming
}

func IsGeneratingStatus(status string) bool {
	return status == StatusGenerating || status == StatusEditing || status == StatusTryOnGenerating
}

// InFlightAction maps an in-flight status back to its action.
func InFlightAction(status string) string {
	switch status {
	case StatusEditing:
		return ActionEdit
	case StatusTryOnGenerating:
		return ActionTryOn
	default:
		return ActionGenerate
	}
}

// CollectedFields projects the session slots into the parser's field set.
func CollectedFields(session *models.WorkflowSession) intent.LookFields {
	fields := intent.LookFields{}
	if session.Occasion != nil {
		fields.Occasion = *session.Occasion
	}
	if session.Style != nil {
		fields.Style = *session.Style
	}
	if session.Category != nil {
		fields.Category = *session.Category
	}
	return fields
}

// AbsorbFields merges every recognized slot from one turn into the session
// before the missing queue is recomputed, so a single message can fill
// several slots at once. Already collected slots are never overwritten.
func AbsorbFields(session *models.WorkflowSession, fields intent.LookFields) {
	if fields.Occasion != "" && session.Occasion == nil {
		occasion := fields.Occasion
		session.Occasion = &occasion
	}
	if fields.Style != "" && session.Style == nil {
		style := fields.Style
		session.Style = &style
	}
	if fields.Category != "" && session.Category == nil {
		category := fields.Category
		session.Category = &category
	}
	RecomputeMissingFields(session)
}

// ResetForNewCreation clears the slots and artifacts of the previous
// request. An explicit new creation always starts from an empty slot set.
func ResetForNewCreation(session *models.WorkflowSession) {
	session.Occasion = nil
	session.Style = nil
	session.Category = nil
	session.RequestText = nil
	session.EditInstruction = nil
	session.MissingFields = nil
	session.ErrorCode = nil
	session.GeneratedLookID = nil
	session.GeneratedLook = nil
	session.TryOnResultImageURL = nil
}

// RecomputeMissingFields keeps the collecting invariant: the session is
// collecting if and only if the missing queue is non-empty.
func RecomputeMissingFields(session *models.WorkflowSession) {
	session.MissingFields = pq.StringArray(intent.MissingLookFields(CollectedFields(session)))
}

// NextMissingField is the slot to ask for next, always the first of the
// fixed occasion, style, category order.
func NextMissingField(session *models.WorkflowSession) string {
	if len(session.MissingFields) == 0 {
		return ""
	}
	return session.MissingFields[0]
}
