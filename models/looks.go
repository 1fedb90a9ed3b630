package models

// GeneratedLook is a produced garment artifact: the image in storage plus
// the prompt that generated it.
type GeneratedLook struct {
	JsonModel
	Owner   UserAccount `json:"-"`
	OwnerID uint        `gorm:"index" json:"-"`

	Prompt   string  `gorm:"type:text" json:"prompt"`
	Category string  `json:"category"` // top, bottom, shoes
	Occasion *string `json:"occasion"`
	Style    *string `json:"style"`

	// image **key** in storage
	ImageURL *string `json:"image_url"`
	Status   string  `json:"status"` // pending, completed, failed
	// whether the look was persisted to the user collection
	Saved bool `gorm:"default:false" json:"saved"`

	GenerationRetryTimes   int     `json:"-"`
	GenerationErrorMessage *string `json:"generation_error_message"`

	LLMModel              *string `json:"llm_model"`
	LLMInputTokenCount    *int32  `json:"llm_input_token_usage"`
	LLMOutputTokenCount   *int32  `json:"llm_output_token_usage"`
	LLMTotalTokenCount    *int32  `json:"llm_total_token_usage"`
	LLMThoughtsTokenCount *int32  `json:"llm_thoughts_token_count"`
}

type TryOnGeneration struct {
	JsonModel
	WorkflowSessionID uint            `gorm:"index" json:"-"`
	WorkflowSession   WorkflowSession `json:"-"`
	LookID            *uint           `json:"look_id"`
	Look              *GeneratedLook  `json:"look"`
	UserAccountID     uint            `json:"-"`
	UserAccount       UserAccount     `json:"user_account"`

	// user selfie at the point of generation
	GeneratedWithSelfieURL string `json:"generated_with_selfie_url"`

	TryOnPreviewImageURL   *string  `json:"try_on_preview_image_url"`
	Status                 string   `json:"status"`   // pending, completed, failed
	Duration               *float64 `json:"duration"` // in seconds
	GenerationRetryTimes   int      `json:"-"`
	GenerationErrorMessage *string  `json:"generation_error_message"`

	LLMModel              *string `json:"llm_model"`
	LLMInputTokenCount    *int32  `json:"llm_input_token_usage"`
	LLMOutputTokenCount   *int32  `json:"llm_output_token_usage"`
	LLMTotalTokenCount    *int32  `json:"llm_total_token_usage"`
	LLMThoughtsTokenCount *int32  `json:"llm_thoughts_token_count"`
}
