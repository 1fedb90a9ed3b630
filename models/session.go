package models

import "github.com/lib/pq"

// WorkflowSession is the single active guided-workflow instance for one
// conversation. Status values and transitions live in the workflow package.
type WorkflowSession struct {
	JsonModel
	SessionUID     string      `gorm:"uniqueIndex" json:"session_uid"`
	ConversationID string      `gorm:"index" json:"conversation_id"`
	Owner          UserAccount `json:"-"`
	OwnerID        uint        `gorm:"index" json:"-"`

	// idle, collecting, choosing_mode, confirming, generating, editing,
	// tryon_confirming, tryon_generating, generated
	Status string `gorm:"default:idle" json:"status"`
	// direct, guided
	Strategy string `json:"strategy"`

	// collected slots
	Occasion    *string `json:"occasion"`
	Style       *string `json:"style"`
	Category    *string `json:"category"` // top, bottom, shoes
	RequestText *string `gorm:"type:text" json:"request_text"`

	// ordered queue of slot names still required; non-empty <=> collecting
	MissingFields pq.StringArray `gorm:"type:text[]" json:"missing_fields"`

	// generate, edit, tryon - at most one at a time
	PendingAction        *string `json:"pending_action"`
	ConfirmationToken    *string `json:"-"`
	EstimatedCostCredits int     `json:"estimated_cost_credits"`
	// credits actually charged for the in-flight action, for refunds
	ChargedCredits int `json:"-"`

	EditInstruction *string `gorm:"type:text" json:"edit_instruction"`

	GeneratedLookID     *uint          `json:"generated_look_id"`
	GeneratedLook       *GeneratedLook `json:"generated_look"`
	TryOnResultImageURL *string        `json:"try_on_result_image_url"`

	ErrorCode       *string `json:"error_code"`
	AutosaveEnabled bool    `gorm:"default:true" json:"autosave_enabled"`
}
