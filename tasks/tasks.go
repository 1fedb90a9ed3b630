package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"nadaapi/ledger"
	"nadaapi/models"
	"nadaapi/services"
	"nadaapi/telegram"
	"nadaapi/workflow"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

const (
	TypeLookGeneration  = "generate:look"
	TypeLookEdit        = "generate:edit"
	TypeTryOnGeneration = "generate:tryon"
)

// Provider deadlines per action. Edits reuse the generation budget,
// try-ons compose two source images and get more headroom.
const (
	LookGenerationTimeout  = 90 * time.Second
	LookEditTimeout        = 90 * time.Second
	TryOnGenerationTimeout = 120 * time.Second
)

type LookGenerationPayload struct {
	SessionID uint `json:"session_id"`
}

type TryOnGenerationPayload struct {
	TryOnID uint `json:"try_on_id"`
}

// Client initializes an asynq client for enqueuing tasks
func NewClient() (*asynq.Client, error) {
	return asynq.NewClient(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")}), nil
}

func NewLookGenerationTask(sessionID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(LookGenerationPayload{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLookGeneration, payload), nil
}

func NewLookEditTask(sessionID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(LookGenerationPayload{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLookEdit, payload), nil
}

func NewTryOnGenerationTask(tryOnID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(TryOnGenerationPayload{TryOnID: tryOnID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTryOnGeneration, payload), nil
}

// failSessionAction reverts an in-flight session after a provider failure,
// refunds the charged credits and persists both. The raw error stays on the
// server; the session only carries the taxonomy code.
func failSessionAction(db *gorm.DB, session *models.WorkflowSession, rawErr error, errorCode string) {
	fmt.Printf("[Session: %v] Action failed with %s: %v\n", session.ID, errorCode, rawErr)
	refund := workflow.FailInFlight(session, errorCode)
	if refund > 0 {
		creditService := ledger.NewService(&ledger.GormCreditStore{DB: db})
		if err := creditService.Refund(session.OwnerID, session.Owner.Tier, refund); err != nil {
			sentry.CaptureException(fmt.Errorf("[Session: %v] Error refunding %d credits: %v", session.ID, refund, err))
		} else {
			fmt.Printf("[Session: %v] Refunded %d credits\n", session.ID, refund)
		}
	}
	if err := db.Save(session).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Session: %v] Error saving failed session: %v", session.ID, err))
	}
}

// completeSessionAction flips an in-flight session to generated, but only
// while it is still in the in-flight status. A cancel that landed during
// the provider call wins and the completion is discarded.
func completeSessionAction(db *gorm.DB, sessionID uint, inFlightStatus string, updates map[string]interface{}) (bool, error) {
	updates["status"] = workflow.StatusGenerated
	updates["charged_credits"] = 0
	updates["estimated_cost_credits"] = 0
	updates["error_code"] = nil
	result := db.Model(&models.WorkflowSession{}).
		Where("id = ? AND status = ?", sessionID, inFlightStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// uploadImageToStorage whitens the garment edges and puts the PNG into the
// bucket under the given key.
func uploadImageToStorage(awsService services.AWSServiceProvider, imageBytes []byte, key string, whiten bool) error {
	if whiten {
		processed, err := services.WhitenBackgroundFeathered(imageBytes, 200, 250, 0.6)
		if err != nil {
			fmt.Println("Whitening failed, uploading raw image:", err)
		} else {
			imageBytes = processed
		}
	}
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	uploadUrl, err := awsService.PresignLink(context.Background(), bucketName, key)
	if err != nil {
		return fmt.Errorf("unable to presign upload for %s: %v", key, err)
	}
	respBody, statusCode, err := awsService.UploadToPresignedURL(context.Background(), bucketName, uploadUrl, imageBytes)
	fmt.Printf("R2 Upload key %s size %v, response body: %s, status code: %d\n", key, len(imageBytes), respBody, statusCode)
	if err != nil {
		return err
	}
	if statusCode != 200 {
		return fmt.Errorf("upload to storage for %s returned status %d", key, statusCode)
	}
	return nil
}

// downloadFromStorage fetches an object by key through a presigned read URL
// and stores it in a temp file. Caller removes the file.
func downloadFromStorage(awsService services.AWSServiceProvider, key string) (string, error) {
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	readUrl, err := awsService.GetPresignedR2FileReadURL(context.Background(), bucketName, key)
	if err != nil {
		return "", fmt.Errorf("unable to presign read for %s: %v", key, err)
	}
	fileBytes, err := services.ReadFileFromUrl(readUrl)
	if err != nil {
		return "", fmt.Errorf("unable to download %s: %v", key, err)
	}
	return services.CreateTempFile(fileBytes, key)
}

func buildGarmentPrompt(session *models.WorkflowSession) services.GarmentPrompt {
	prompt := services.GarmentPrompt{}
	if session.Occasion != nil {
		prompt.Occasion = *session.Occasion
	}
	if session.Style != nil {
		prompt.Style = *session.Style
	}
	if session.Category != nil {
		prompt.Category = *session.Category
	}
	if session.RequestText != nil {
		prompt.RequestText = *session.RequestText
	}
	return prompt
}

// HandleLookGenerationTask produces a new garment image for a session that
// was confirmed into the generating status. A session no longer in that
// status was cancelled in the meantime; the task is then a no-op.
func HandleLookGenerationTask(
	ctx context.Context, t *asynq.Task, db *gorm.DB, processor services.LLMProcessor,
	awsService services.AWSServiceProvider, fbApp *firebase.App) error {
	var payload LookGenerationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Session: %v] Look generation start\n", payload.SessionID)

	var session models.WorkflowSession
	res := db.Joins("Owner").First(&session, payload.SessionID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving session for generation %v", payload.SessionID))
		return res.Error
	}
	if session.Status != workflow.StatusGenerating {
		fmt.Printf("[Session: %v] Not in generating status (%s), skipping\n", session.ID, session.Status)
		return nil
	}

	prompt := buildGarmentPrompt(&session)
	look := models.GeneratedLook{
		OwnerID:  session.OwnerID,
		Prompt:   prompt.RequestText,
		Category: prompt.Category,
		Occasion: session.Occasion,
		Style:    session.Style,
		Status:   "pending",
	}
	if err := db.Create(&look).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Session: %v] Error creating look record: %v", session.ID, err))
		failSessionAction(db, &session, err, workflow.ErrCodeUnknown)
		return nil
	}

	model := services.Flash25Image
	tctx, cancel := context.WithTimeout(ctx, LookGenerationTimeout)
	defer cancel()
	response, err := processor.GenerateGarment(tctx, prompt, model)
	if err != nil || response == nil || len(response.Images) == 0 {
		if err == nil {
			err = fmt.Errorf("provider returned no image")
		}
		sentry.CaptureException(fmt.Errorf("[Session: %v] Error generating look: %v", session.ID, err))
		saveLookGenerationFail(db, &look, err.Error())
		failSessionAction(db, &session, err, workflow.MapProviderError(err, 0))
		return nil
	}

	key := fmt.Sprintf("looks/look-%v-%v.png", look.ID, time.Now().Unix())
	if err := uploadImageToStorage(awsService, response.Images[0], key, true); err != nil {
		sentry.CaptureException(fmt.Errorf("[Session: %v] Error uploading look image: %v", session.ID, err))
		saveLookGenerationFail(db, &look, err.Error())
		failSessionAction(db, &session, err, workflow.ErrCodeNetworkError)
		return nil
	}

	modelString := model.String()
	look.ImageURL = &key
	look.Status = "completed"
	look.Saved = session.AutosaveEnabled
	look.GenerationErrorMessage = nil
	look.LLMModel = &modelString
	look.LLMInputTokenCount = &response.InputTokenCount
	look.LLMOutputTokenCount = &response.OutputTokenCount
	look.LLMTotalTokenCount = &response.TotalTokenCount
	look.LLMThoughtsTokenCount = &response.ThoughtsTokenCount
	if err := db.Save(&look).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Session: %v] Error saving completed look: %v", session.ID, err))
		return err
	}

	completed, err := completeSessionAction(db, session.ID, workflow.StatusGenerating, map[string]interface{}{"generated_look_id": look.ID})
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Session: %v] Error saving session after generation: %v", session.ID, err))
		return err
	}
	if !completed {
		fmt.Printf("[Session: %v] Cancelled while generating, discarding result\n", session.ID)
		if err := db.Model(&look).Update("saved", false).Error; err != nil {
			sentry.CaptureException(fmt.Errorf("[Session: %v] Error unsaving discarded look %v: %v", session.ID, look.ID, err))
		}
		return nil
	}

	fmt.Printf("[Session: %v] Look %v generated successfully\n", session.ID, look.ID)
	services.SendNotification(fbApp, db, session.OwnerID, "Your look is ready", "Open the app to see your new garment", map[string]string{"session_uid": session.SessionUID, "type": "look_generated"})
	telegram.NotifyMilestone(fmt.Sprintf("Look %v generated for user %v (%s)", look.ID, session.OwnerID, look.Category))
	return nil
}

// HandleLookEditTask applies a single edit instruction to the session's
// current look and stores the result as a new version.
func HandleLookEditTask(
	ctx context.Context, t *asynq.Task, db *gorm.DB, processor services.LLMProcessor,
	awsService services.AWSServiceProvider, fbApp *firebase.App) error {
	var payload LookGenerationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Session: %v] Look edit start\n", payload.SessionID)

	var session models.WorkflowSession
	res := db.Joins("Owner").Preload("GeneratedLook").First(&session, payload.SessionID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving session for edit %v", payload.SessionID))
		return res.Error
	}
	if session.Status != workflow.StatusEditing {
		fmt.Printf("[Session: %v] Not in editing status (%s), skipping\n", session.ID, session.Status)
		return nil
	}
	if session.GeneratedLook == nil || session.GeneratedLook.ImageURL == nil || session.EditInstruction == nil {
		err := fmt.Errorf("[Session: %v] Edit requested without a look or instruction", session.ID)
		sentry.CaptureException(err)
		failSessionAction(db, &session, err, workflow.ErrCodeValidationMissingField)
		return nil
	}
	look := session.GeneratedLook

	garmentPath, err := downloadFromStorage(awsService, *look.ImageURL)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Session: %v] Error downloading look for edit: %v", session.ID, err))
		failSessionAction(db, &session, err, workflow.ErrCodeNetworkError)
		return nil
	}
	defer os.Remove(garmentPath)

	model := services.Flash25Image
	tctx, cancel := context.WithTimeout(ctx, LookEditTimeout)
	defer cancel()
	response, err := processor.EditGarment(tctx, garmentPath, *session.EditInstruction, model)
	if err != nil || response == nil || len(response.Images) == 0 {
		if err == nil {
			err = fmt.Errorf("provider returned no image")
		}
		sentry.CaptureException(fmt.Errorf("[Session: %v] Error editing look: %v", session.ID, err))
		saveLookGenerationFail(db, look, err.Error())
		failSessionAction(db, &session, err, workflow.MapProviderError(err, 0))
		return nil
	}

	key := fmt.Sprintf("looks/look-%v-%v.png", look.ID, time.Now().Unix())
	if err := uploadImageToStorage(awsService, response.Images[0], key, true); err != nil {
		sentry.CaptureException(fmt.Errorf("[Session: %v] Error uploading edited look: %v", session.ID, err))
		saveLookGenerationFail(db, look, err.Error())
		failSessionAction(db, &session, err, workflow.ErrCodeNetworkError)
		return nil
	}

	modelString := model.String()
	look.ImageURL = &key
	look.Status = "completed"
	look.GenerationErrorMessage = nil
	look.LLMModel = &modelString
	look.LLMInputTokenCount = &response.InputTokenCount
	look.LLMOutputTokenCount = &response.OutputTokenCount
	look.LLMTotalTokenCount = &response.TotalTokenCount
	look.LLMThoughtsTokenCount = &response.ThoughtsTokenCount
	if err := db.Save(look).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Session: %v] Error saving edited look: %v", session.ID, err))
		return err
	}

	completed, err := completeSessionAction(db, session.ID, workflow.StatusEditing, map[string]interface{}{"edit_instruction": nil})
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Session: %v] Error saving session after edit: %v", session.ID, err))
		return err
	}
	if !completed {
		fmt.Printf("[Session: %v] Cancelled while editing, discarding result\n", session.ID)
		return nil
	}

	fmt.Printf("[Session: %v] Look %v edited successfully\n", session.ID, look.ID)
	services.SendNotification(fbApp, db, session.OwnerID, "Your edit is ready", "Open the app to see the updated garment", map[string]string{"session_uid": session.SessionUID, "type": "look_edited"})
	return nil
}

// HandleTryOnGenerationTask composes the user's full-body selfie with the
// generated garment.
func HandleTryOnGenerationTask(
	ctx context.Context, t *asynq.Task, db *gorm.DB, processor services.LLMProcessor,
	awsService services.AWSServiceProvider, fbApp *firebase.App) error {
	var payload TryOnGenerationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[TryOn: %v] Try-on generation start\n", payload.TryOnID)

	var tryOn models.TryOnGeneration
	res := db.Preload("WorkflowSession.Owner").Preload("Look").First(&tryOn, payload.TryOnID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving try-on for generation %v", payload.TryOnID))
		return res.Error
	}
	session := tryOn.WorkflowSession
	if session.Status != workflow.StatusTryOnGenerating {
		fmt.Printf("[TryOn: %v] Session %v not in tryon_generating status (%s), skipping\n", tryOn.ID, session.ID, session.Status)
		return nil
	}
	if tryOn.Look == nil || tryOn.Look.ImageURL == nil {
		err := fmt.Errorf("[TryOn: %v] Try-on requested without a completed look", tryOn.ID)
		sentry.CaptureException(err)
		saveTryOnGenerationFail(db, &tryOn, "No garment image available")
		failSessionAction(db, &session, err, workflow.ErrCodeValidationMissingField)
		return nil
	}

	started := time.Now()

	selfiePath, err := downloadFromStorage(awsService, tryOn.GeneratedWithSelfieURL)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error downloading selfie: %v", tryOn.ID, err))
		saveTryOnGenerationFail(db, &tryOn, "Failed to read selfie image")
		failSessionAction(db, &session, err, workflow.ErrCodeNetworkError)
		return nil
	}
	defer os.Remove(selfiePath)

	garmentPath, err := downloadFromStorage(awsService, *tryOn.Look.ImageURL)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error downloading garment: %v", tryOn.ID, err))
		saveTryOnGenerationFail(db, &tryOn, "Failed to read garment image")
		failSessionAction(db, &session, err, workflow.ErrCodeNetworkError)
		return nil
	}
	defer os.Remove(garmentPath)

	model := services.Flash25Image
	tctx, cancel := context.WithTimeout(ctx, TryOnGenerationTimeout)
	defer cancel()
	response, err := processor.GenerateTryOn(tctx, selfiePath, []string{garmentPath}, model)
	if err != nil || response == nil || len(response.Images) == 0 {
		if err == nil {
			err = fmt.Errorf("provider returned no image")
		}
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error generating try-on: %v", tryOn.ID, err))
		saveTryOnGenerationFail(db, &tryOn, err.Error())
		failSessionAction(db, &session, err, workflow.MapProviderError(err, 0))
		return nil
	}

	key := fmt.Sprintf("tryons/tryon-%v.png", tryOn.ID)
	if err := uploadImageToStorage(awsService, response.Images[0], key, false); err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error uploading try-on image: %v", tryOn.ID, err))
		saveTryOnGenerationFail(db, &tryOn, err.Error())
		failSessionAction(db, &session, err, workflow.ErrCodeNetworkError)
		return nil
	}

	modelString := model.String()
	duration := time.Since(started).Seconds()
	tryOn.TryOnPreviewImageURL = &key
	tryOn.Status = "completed"
	tryOn.Duration = &duration
	tryOn.GenerationErrorMessage = nil
	tryOn.LLMModel = &modelString
	tryOn.LLMInputTokenCount = &response.InputTokenCount
	tryOn.LLMOutputTokenCount = &response.OutputTokenCount
	tryOn.LLMTotalTokenCount = &response.TotalTokenCount
	tryOn.LLMThoughtsTokenCount = &response.ThoughtsTokenCount
	if err := db.Save(&tryOn).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error saving completed try-on: %v", tryOn.ID, err))
		return err
	}

	completed, err := completeSessionAction(db, session.ID, workflow.StatusTryOnGenerating, map[string]interface{}{"try_on_result_image_url": key})
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error saving session after try-on: %v", tryOn.ID, err))
		return err
	}
	if !completed {
		fmt.Printf("[TryOn: %v] Cancelled while generating, discarding result\n", tryOn.ID)
		return nil
	}

	fmt.Printf("[TryOn: %v] Try-on generated successfully in %.1fs\n", tryOn.ID, duration)
	services.SendNotification(fbApp, db, tryOn.UserAccountID, "Your try-on is ready", "Open the app to see yourself in the new look", map[string]string{"session_uid": session.SessionUID, "type": "tryon_generated"})
	telegram.NotifyMilestone(fmt.Sprintf("Try-on %v generated for user %v in %.1fs", tryOn.ID, tryOn.UserAccountID, duration))
	return nil
}

func saveLookGenerationFail(db *gorm.DB, look *models.GeneratedLook, message string) {
	look.GenerationRetryTimes = look.GenerationRetryTimes + 1
	look.GenerationErrorMessage = services.StrPointer(message)
	look.Status = "failed"
	if err := db.Save(look).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Fail Look %v] Error on saving look for failed status: %v", look.ID, err))
	}
}

func saveTryOnGenerationFail(db *gorm.DB, tryOn *models.TryOnGeneration, message string) {
	tryOn.GenerationRetryTimes = tryOn.GenerationRetryTimes + 1
	tryOn.GenerationErrorMessage = services.StrPointer(message)
	tryOn.Status = "failed"
	if err := db.Save(tryOn).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Fail TryOn %v] Error on saving try-on for failed status: %v", tryOn.ID, err))
	}
}
