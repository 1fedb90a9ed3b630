package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"nadaapi/intent"
	"nadaapi/languageutil"
	"nadaapi/ledger"
	"nadaapi/models"
	"nadaapi/services"
	"nadaapi/tasks"
	"nadaapi/workflow"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

type AssistantMessageIn struct {
	ConversationID string `json:"conversation_id" validate:"required,max=100"`
	// message, confirm, cancel, select_mode, tryon, set_autosave
	Action string `json:"action" validate:"required,oneof=message confirm cancel select_mode tryon set_autosave"`

	Text              string `json:"text" validate:"omitempty,max=2000"`
	ConfirmationToken string `json:"confirmation_token" validate:"omitempty,max=64"`
	Mode              string `json:"mode" validate:"omitempty,oneof=direct guided"`
	Autosave          *bool  `json:"autosave"`
}

// AssistantTurnResponse is the full snapshot the client reconciles its UI
// from after every turn. The view block is derived server side so panels
// can never disagree with the session status.
type AssistantTurnResponse struct {
	Session              *models.WorkflowSession `json:"session"`
	View                 workflow.ViewState      `json:"view"`
	Reply                string                  `json:"reply"`
	RequiresConfirmation bool                    `json:"requires_confirmation"`
	ConfirmationToken    string                  `json:"confirmation_token,omitempty"`
	EstimatedCostCredits int                     `json:"estimated_cost_credits,omitempty"`
	CreditsUsedThisCall  int                     `json:"credits_used_this_call"`
	Credits              ledger.Status           `json:"credits"`
	UpgradeSuggested     bool                    `json:"upgrade_suggested"`

	LookImageURL  *string `json:"look_image_url,omitempty"`
	TryOnImageURL *string `json:"try_on_image_url,omitempty"`
}

type WorkflowController struct {
	AWSService  services.AWSServiceProvider
	FirebaseApp *firebase.App
	URLCache    services.URLCacheServiceProvider
}

func (controller *WorkflowController) AssistantRoutes(g *echo.Group) {
	g.POST("/message", controller.HandleTurn)
	g.GET("/session/:uid", controller.GetSession)
	g.POST("/session/:uid/cancel", controller.CancelSession)
}

// turnState carries everything one turn mutates so the response builder
// stays a pure projection.
type turnState struct {
	session             *models.WorkflowSession
	locale              language.Tag
	reply               string
	creditsUsedThisCall int
	token               string
}

func creditServiceFor(db *gorm.DB) *ledger.Service {
	return ledger.NewService(&ledger.GormCreditStore{DB: db})
}

func loadOrCreateSession(db *gorm.DB, user models.UserAccount, conversationID string) (*models.WorkflowSession, error) {
	var session models.WorkflowSession
	result := db.Preload("GeneratedLook").
		Where("owner_id = ? AND conversation_id = ?", user.ID, conversationID).
		First(&session)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		session = models.WorkflowSession{
			SessionUID:      uuid.NewString(),
			ConversationID:  conversationID,
			OwnerID:         user.ID,
			Status:          workflow.StatusIdle,
			AutosaveEnabled: true,
		}
		if err := db.Create(&session).Error; err != nil {
			return nil, err
		}
		return &session, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &session, nil
}

func (controller *WorkflowController) HandleTurn(c echo.Context) error {
	var req AssistantMessageIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Service is not available, please try again a bit later"})
	}

	session, err := loadOrCreateSession(db, user, req.ConversationID)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[User %v] Error loading session for conversation %s: %v", user.ID, req.ConversationID, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load session"})
	}

	state := &turnState{
		session: session,
		locale:  languageutil.Match(c.Request().Header.Get("Accept-Language")),
	}

	switch req.Action {
	case "cancel":
		controller.applyCancel(db, user, state)
	case "confirm":
		if err := controller.applyConfirm(db, user, asynqClient, state, req.ConfirmationToken); err != nil {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
	case "select_mode":
		controller.applyModeSelection(state, req.Mode)
	case "tryon":
		controller.applyTryOnRequest(user, state)
	case "set_autosave":
		if req.Autosave != nil {
			session.AutosaveEnabled = *req.Autosave
		}
		state.reply = languageutil.Message(state.locale, "autosave_updated")
	default:
		controller.applyMessage(state, req.Text)
	}

	if err := db.Save(session).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Session %v] Error saving session after turn: %v", session.ID, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save session"})
	}

	return controller.respondSnapshot(c, db, user, state)
}

// applyCancel aborts whatever is pending or running and refunds any
// already charged credits.
func (controller *WorkflowController) applyCancel(db *gorm.DB, user models.UserAccount, state *turnState) {
	refund := workflow.Cancel(state.session)
	if refund > 0 {
		if err := creditServiceFor(db).Refund(user.ID, user.Tier, refund); err != nil {
			sentry.CaptureException(fmt.Errorf("[Session %v] Error refunding %v credits on cancel: %v", state.session.ID, refund, err))
		}
	}
	state.reply = languageutil.Message(state.locale, "cancelled")
}

// applyConfirm validates the single-use token, charges the ledger and only
// then enqueues the provider task. A failed charge reverts the session with
// the credits code instead of starting anything.
func (controller *WorkflowController) applyConfirm(db *gorm.DB, user models.UserAccount, asynqClient *asynq.Client, state *turnState, token string) error {
	session := state.session
	cost := session.EstimatedCostCredits

	action, err := workflow.Confirm(session, token)
	if err != nil {
		return err
	}

	charged, err := creditServiceFor(db).Consume(user.ID, user.Tier, cost)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Session %v] Error consuming %v credits: %v", session.ID, cost, err))
		workflow.FailInFlight(session, workflow.ErrCodeUnknown)
		state.reply = languageutil.Message(state.locale, workflow.ErrCodeUnknown)
		return nil
	}
	if !charged {
		workflow.FailInFlight(session, workflow.ErrCodeInsufficientCredits)
		state.reply = languageutil.Message(state.locale, workflow.ErrCodeInsufficientCredits)
		return nil
	}
	session.ChargedCredits = cost
	state.creditsUsedThisCall = cost

	if err := controller.enqueueAction(db, user, asynqClient, state, action); err != nil {
		sentry.CaptureException(fmt.Errorf("[Session %v] Error enqueuing %s: %v", session.ID, action, err))
		refund := workflow.FailInFlight(session, workflow.ErrCodeServiceUnavailable)
		if refund > 0 {
			if rerr := creditServiceFor(db).Refund(user.ID, user.Tier, refund); rerr != nil {
				sentry.CaptureException(fmt.Errorf("[Session %v] Error refunding after enqueue failure: %v", session.ID, rerr))
			}
		}
		state.creditsUsedThisCall = 0
		state.reply = languageutil.Message(state.locale, workflow.ErrCodeServiceUnavailable)
		return nil
	}

	switch action {
	case workflow.ActionEdit:
		state.reply = languageutil.Message(state.locale, "edit_started")
	case workflow.ActionTryOn:
		state.reply = languageutil.Message(state.locale, "tryon_started")
	default:
		state.reply = languageutil.Message(state.locale, "generation_started")
	}
	return nil
}

func (controller *WorkflowController) enqueueAction(db *gorm.DB, user models.UserAccount, asynqClient *asynq.Client, state *turnState, action string) error {
	session := state.session
	var task *asynq.Task
	var err error
	switch action {
	case workflow.ActionEdit:
		task, err = tasks.NewLookEditTask(session.ID)
	case workflow.ActionTryOn:
		if user.UserFullBodyImageURL == nil || *user.UserFullBodyImageURL == "" {
			return errors.New("selfie is not set")
		}
		tryOn := models.TryOnGeneration{
			WorkflowSessionID:      session.ID,
			LookID:                 session.GeneratedLookID,
			UserAccountID:          user.ID,
			GeneratedWithSelfieURL: *user.UserFullBodyImageURL,
			Status:                 "pending",
		}
		if err := db.Create(&tryOn).Error; err != nil {
			return err
		}
		task, err = tasks.NewTryOnGenerationTask(tryOn.ID)
	default:
		task, err = tasks.NewLookGenerationTask(session.ID)
	}
	if err != nil {
		return err
	}
	info, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Queue("generate"))
	if err != nil {
		return err
	}
	fmt.Println("[Queue] Task submitted for session ", session.ID, " action ", action, " Task ID: ", info.ID)
	return nil
}

// applyModeSelection resolves the choosing_mode fork: direct arms the
// generation confirmation right away, guided starts the slot questions.
func (controller *WorkflowController) applyModeSelection(state *turnState, mode string) {
	session := state.session
	if session.Status != workflow.StatusChoosingMode {
		state.reply = languageutil.Message(state.locale, "chat_fallback")
		return
	}
	if mode == workflow.StrategyGuided {
		session.Strategy = workflow.StrategyGuided
		session.Status = workflow.StatusCollecting
		workflow.RecomputeMissingFields(session)
		if workflow.NextMissingField(session) == "" {
			controller.armGeneration(state)
			return
		}
		state.reply = slotPrompt(state.locale, workflow.NextMissingField(session))
		return
	}
	session.Strategy = workflow.StrategyDirect
	controller.armGeneration(state)
}

// applyTryOnRequest arms the try-on confirmation for the current look.
func (controller *WorkflowController) applyTryOnRequest(user models.UserAccount, state *turnState) {
	session := state.session
	if session.Status != workflow.StatusGenerated || session.GeneratedLookID == nil {
		state.reply = languageutil.Message(state.locale, "chat_fallback")
		return
	}
	if user.UserFullBodyImageURL == nil || *user.UserFullBodyImageURL == "" {
		state.reply = languageutil.Message(state.locale, "selfie_required")
		return
	}
	token, err := workflow.RequestConfirmation(session, workflow.ActionTryOn, workflow.CostTryOnCredits)
	if err != nil {
		state.reply = languageutil.Message(state.locale, "pending_action")
		return
	}
	state.token = token
	state.reply = languageutil.Messagef(state.locale, "confirm_cost", workflow.CostTryOnCredits)
}

// armGeneration moves the session into the cost-confirmation step for a
// fresh generation.
func (controller *WorkflowController) armGeneration(state *turnState) {
	session := state.session
	session.MissingFields = nil
	token, err := workflow.RequestConfirmation(session, workflow.ActionGenerate, workflow.CostGenerateCredits)
	if err != nil {
		state.reply = languageutil.Message(state.locale, "pending_action")
		return
	}
	state.token = token
	state.reply = languageutil.Messagef(state.locale, "confirm_cost", workflow.CostGenerateCredits)
}

func slotPrompt(locale language.Tag, slot string) string {
	switch slot {
	case intent.SlotStyle:
		return languageutil.Message(locale, "ask_style")
	case intent.SlotCategory:
		return languageutil.Message(locale, "ask_category")
	default:
		return languageutil.Message(locale, "ask_occasion")
	}
}

// applyMessage routes one free-text turn by session status first, then by
// detected intent.
func (controller *WorkflowController) applyMessage(state *turnState, text string) {
	session := state.session

	switch {
	case workflow.IsGeneratingStatus(session.Status):
		state.reply = languageutil.Message(state.locale, "pending_action")

	case workflow.IsConfirmingStatus(session.Status):
		controller.applyConfirmingReply(state, text)

	case session.Status == workflow.StatusChoosingMode:
		controller.applyChoosingModeReply(state, text)

	case session.Status == workflow.StatusCollecting:
		controller.applySlotAnswer(state, text)

	default:
		controller.applyStableMessage(state, text)
	}
}

// applyConfirmingReply handles free text while the cost dialog is open. A
// negative cancels; everything else re-states the pending cost, since an
// actual charge requires the token back through the confirm action.
func (controller *WorkflowController) applyConfirmingReply(state *turnState, text string) {
	if intent.IsNegative(text) {
		workflow.Cancel(state.session)
		state.reply = languageutil.Message(state.locale, "cancelled")
		return
	}
	state.reply = languageutil.Messagef(state.locale, "confirm_cost", state.session.EstimatedCostCredits)
}

func (controller *WorkflowController) applyChoosingModeReply(state *turnState, text string) {
	normalized := intent.Normalize(text)
	switch {
	case intent.IsNegative(text):
		workflow.Cancel(state.session)
		state.reply = languageutil.Message(state.locale, "cancelled")
	case strings.Contains(normalized, "direct") || strings.Contains(normalized, "directo") || strings.Contains(normalized, "ya") || strings.Contains(normalized, "dale"):
		controller.applyModeSelection(state, workflow.StrategyDirect)
	case strings.Contains(normalized, "pregunta") || strings.Contains(normalized, "guia") || strings.Contains(normalized, "guided") || strings.Contains(normalized, "question"):
		controller.applyModeSelection(state, workflow.StrategyGuided)
	default:
		state.reply = languageutil.Message(state.locale, "choose_mode")
	}
}

// applySlotAnswer fills the next missing slot from a directed answer. One
// answer can fill several slots when the parser recognizes them; the
// category slot never accepts an ambiguous answer.
func (controller *WorkflowController) applySlotAnswer(state *turnState, text string) {
	session := state.session
	if intent.IsNegative(text) {
		workflow.Cancel(session)
		state.reply = languageutil.Message(state.locale, "cancelled")
		return
	}

	asked := workflow.NextMissingField(session)
	answer := intent.ParseSlotAnswer(asked, text)
	if answer == "" {
		if asked == intent.SlotCategory {
			state.reply = languageutil.Message(state.locale, "ask_category_retry")
		} else {
			state.reply = languageutil.Message(state.locale, "ask_slot_retry")
		}
		return
	}

	fields := intent.ParseLookCreationFields(text)
	switch asked {
	case intent.SlotOccasion:
		fields.Occasion = answer
	case intent.SlotStyle:
		fields.Style = answer
	case intent.SlotCategory:
		fields.Category = answer
	}
	workflow.AbsorbFields(session, fields)

	next := workflow.NextMissingField(session)
	if next == "" {
		controller.armGeneration(state)
		return
	}
	state.reply = slotPrompt(state.locale, next)
}

// applyStableMessage handles idle and generated sessions: detect a
// creation or edit intent, otherwise fall back to the generic prompt.
func (controller *WorkflowController) applyStableMessage(state *turnState, text string) {
	session := state.session

	if session.Status == workflow.StatusGenerated && session.GeneratedLookID != nil && intent.DetectGarmentEditIntent(text) {
		instruction := text
		session.EditInstruction = &instruction
		token, err := workflow.RequestConfirmation(session, workflow.ActionEdit, workflow.CostEditCredits)
		if err != nil {
			state.reply = languageutil.Message(state.locale, "pending_action")
			return
		}
		state.token = token
		state.reply = languageutil.Messagef(state.locale, "confirm_cost", workflow.CostEditCredits)
		return
	}

	if intent.DetectLookCreationIntent(text) {
		workflow.ResetForNewCreation(session)
		requestText := text
		session.RequestText = &requestText
		fields := intent.ParseLookCreationFields(text)
		workflow.AbsorbFields(session, fields)
		if workflow.NextMissingField(session) == "" {
			controller.armGeneration(state)
			return
		}
		if fields == (intent.LookFields{}) {
			// nothing recognized yet, skip the mode fork and start asking
			session.Strategy = workflow.StrategyGuided
			session.Status = workflow.StatusCollecting
			state.reply = slotPrompt(state.locale, workflow.NextMissingField(session))
			return
		}
		session.Status = workflow.StatusChoosingMode
		state.reply = languageutil.Message(state.locale, "choose_mode")
		return
	}

	state.reply = languageutil.Message(state.locale, "chat_fallback")
}

// respondSnapshot builds the reconciled snapshot: session, derived view,
// credit status and presigned artifact URLs.
func (controller *WorkflowController) respondSnapshot(c echo.Context, db *gorm.DB, user models.UserAccount, state *turnState) error {
	session := state.session

	credits, err := creditServiceFor(db).GetStatus(user.ID, user.Tier)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Session %v] Error reading credit status: %v", session.ID, err))
	}

	response := AssistantTurnResponse{
		Session:              session,
		View:                 workflow.DeriveViewState(session),
		Reply:                state.reply,
		RequiresConfirmation: workflow.IsConfirmingStatus(session.Status),
		ConfirmationToken:    state.token,
		CreditsUsedThisCall:  state.creditsUsedThisCall,
		Credits:              credits,
	}
	if response.RequiresConfirmation {
		response.EstimatedCostCredits = session.EstimatedCostCredits
	}
	if session.ErrorCode != nil {
		response.UpgradeSuggested = workflow.IsUpgradeNudge(*session.ErrorCode)
		if state.reply == "" {
			response.Reply = languageutil.Message(state.locale, *session.ErrorCode)
		}
	}

	ctx := c.Request().Context()
	if session.GeneratedLook != nil && session.GeneratedLook.ImageURL != nil {
		if url, err := controller.URLCache.GetReadURL(ctx, *session.GeneratedLook.ImageURL); err == nil && url != "" {
			response.LookImageURL = &url
		}
	}
	if session.TryOnResultImageURL != nil {
		if url, err := controller.URLCache.GetReadURL(ctx, *session.TryOnResultImageURL); err == nil && url != "" {
			response.TryOnImageURL = &url
		}
	}

	return c.JSON(http.StatusOK, response)
}

// GetSession returns the current snapshot without running a turn, used by
// clients to reconcile after reconnects.
func (controller *WorkflowController) GetSession(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var session models.WorkflowSession
	result := db.Preload("GeneratedLook").
		Where("session_uid = ? AND owner_id = ?", c.Param("uid"), user.ID).
		First(&session)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}
	if result.Error != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch session"})
	}

	state := &turnState{
		session: &session,
		locale:  languageutil.Match(c.Request().Header.Get("Accept-Language")),
	}
	return controller.respondSnapshot(c, db, user, state)
}

// CancelSession aborts the pending or in-flight action of a session
// addressed by uid.
func (controller *WorkflowController) CancelSession(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var session models.WorkflowSession
	result := db.Preload("GeneratedLook").
		Where("session_uid = ? AND owner_id = ?", c.Param("uid"), user.ID).
		First(&session)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}
	if result.Error != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch session"})
	}

	state := &turnState{
		session: &session,
		locale:  languageutil.Match(c.Request().Header.Get("Accept-Language")),
	}
	controller.applyCancel(db, user, state)

	if err := db.Save(&session).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Session %v] Error saving session after cancel: %v", session.ID, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save session"})
	}
	return controller.respondSnapshot(c, db, user, state)
}
