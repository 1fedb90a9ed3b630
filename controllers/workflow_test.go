package controllers

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"

	"nadaapi/dbhelper"
	"nadaapi/languageutil"
	"nadaapi/ledger"
	"nadaapi/models"
	"nadaapi/test"
	"nadaapi/workflow"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

func setupTestServer(db *gorm.DB) *echo.Echo {
	os.Setenv("JWT_SECRET", "testsecret")
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: "localhost:6379"})
	return SetupServer(
		db,
		&test.AWSProviderMock{MockUrl: "https://fakebucketurl.com/read"},
		test.URLCacheMock{MockUrl: "https://fakebucketurl.com/read"},
		nil,
		asynqClient,
		nil,
	)
}

func postTurn(e *echo.Echo, userID uint, payload AssistantMessageIn) (*httptest.ResponseRecorder, AssistantTurnResponse) {
	req := test.NewJSONAuthRequest("POST", "/assistant/message", fmt.Sprint(userID), payload)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var response AssistantTurnResponse
	json.Unmarshal(rec.Body.Bytes(), &response)
	return rec, response
}

func TestGuidedCreationFlowReachesConfirmation(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	// creation intent with one recognizable slot
	rec, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "quiero un look para una boda",
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusChoosingMode, response.Session.Status)
	assert.False(t, response.RequiresConfirmation)

	// guided mode starts asking for the next missing slot
	rec, response = postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "select_mode", Mode: "guided",
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusCollecting, response.Session.Status)
	assert.Equal(t, []string{"style", "category"}, []string(response.Session.MissingFields))

	rec, response = postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "algo formal",
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusCollecting, response.Session.Status)
	assert.Equal(t, []string{"category"}, []string(response.Session.MissingFields))

	// last slot filled, the cost dialog opens with a token
	rec, response = postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "una camisa",
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusConfirming, response.Session.Status)
	assert.True(t, response.RequiresConfirmation)
	assert.Equal(t, workflow.CostGenerateCredits, response.EstimatedCostCredits)
	assert.NotEmpty(t, response.ConfirmationToken)
	assert.True(t, response.View.ShowCostConfirmation)
	assert.Equal(t, 0, response.CreditsUsedThisCall)
}

func TestCreationIntentWithoutSlotsStartsCollecting(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	// no recognizable slot: asking questions starts right away, no mode fork
	rec, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "quiero crear un look nuevo",
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusCollecting, response.Session.Status)
	assert.Equal(t, workflow.StrategyGuided, response.Session.Strategy)
	assert.Equal(t, []string{"occasion", "style", "category"}, []string(response.Session.MissingFields))
}

func TestNewCreationIntentResetsPreviousSlots(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	look := models.GeneratedLook{OwnerID: user.ID, Category: "top", Status: "completed", Saved: true}
	db.Create(&look)
	session := models.WorkflowSession{
		SessionUID: "uid-r1", ConversationID: "conv-1", OwnerID: user.ID,
		Status: workflow.StatusGenerated, GeneratedLookID: &look.ID,
		Occasion: test.NewRefString("boda"), Style: test.NewRefString("formal"), Category: test.NewRefString("top"),
	}
	db.Create(&session)

	// a fresh creation request must not inherit the previous look's slots
	rec, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "quiero un look para la oficina",
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusChoosingMode, response.Session.Status)
	if assert.NotNil(t, response.Session.Occasion) {
		assert.Equal(t, "oficina", *response.Session.Occasion)
	}
	assert.Nil(t, response.Session.Style)
	assert.Nil(t, response.Session.Category)
	assert.Nil(t, response.Session.GeneratedLookID)
}

func TestAmbiguousCategoryIsReasked(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "quiero un look formal para una boda",
	})
	postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "select_mode", Mode: "guided",
	})

	// names two categories: must be re-asked, never guessed
	rec, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "una camisa o un pantalon",
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusCollecting, response.Session.Status)
	assert.Nil(t, response.Session.Category)
	assert.Equal(t, []string{"category"}, []string(response.Session.MissingFields))
}

func TestConfirmWithWrongTokenConflicts(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	_, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "quiero una camisa formal para una boda",
	})
	assert.Equal(t, workflow.StatusConfirming, response.Session.Status)

	rec, _ := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "confirm", ConfirmationToken: "not-the-token",
	})
	assert.Equal(t, 409, rec.Code)

	// the session is still confirming, nothing was charged
	var session models.WorkflowSession
	db.Where("owner_id = ? AND conversation_id = ?", user.ID, "conv-1").First(&session)
	assert.Equal(t, workflow.StatusConfirming, session.Status)

	status, _ := ledger.NewService(&ledger.GormCreditStore{DB: db}).GetStatus(user.ID, user.Tier)
	assert.Equal(t, 0, status.Used)
}

func TestConfirmWithoutCreditsSuggestsUpgrade(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	creditService := ledger.NewService(&ledger.GormCreditStore{DB: db})
	charged, err := creditService.Consume(user.ID, user.Tier, 198)
	assert.NoError(t, err)
	assert.True(t, charged)

	_, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "quiero una camisa formal para una boda",
	})
	assert.Equal(t, workflow.StatusConfirming, response.Session.Status)
	token := response.ConfirmationToken

	rec, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "confirm", ConfirmationToken: token,
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusIdle, response.Session.Status)
	assert.True(t, response.UpgradeSuggested)
	assert.Equal(t, 0, response.CreditsUsedThisCall)
	if assert.NotNil(t, response.Session.ErrorCode) {
		assert.Equal(t, workflow.ErrCodeInsufficientCredits, *response.Session.ErrorCode)
	}

	// the 2 remaining credits were never touched
	status, _ := creditService.GetStatus(user.ID, user.Tier)
	assert.Equal(t, 198, status.Used)
}

func TestFreeTextNeverCharges(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	_, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "quiero una camisa formal para una boda",
	})
	assert.Equal(t, workflow.StatusConfirming, response.Session.Status)

	// an affirmative in free text re-states the cost but does not charge
	rec, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "si dale",
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusConfirming, response.Session.Status)
	assert.Equal(t, 0, response.CreditsUsedThisCall)

	status, _ := ledger.NewService(&ledger.GormCreditStore{DB: db}).GetStatus(user.ID, user.Tier)
	assert.Equal(t, 0, status.Used)

	// a negative cancels back to idle
	rec, response = postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "mejor no",
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusIdle, response.Session.Status)
}

func TestTryOnRequiresSelfie(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	look := models.GeneratedLook{OwnerID: user.ID, Category: "top", Status: "completed"}
	db.Create(&look)
	session := models.WorkflowSession{
		SessionUID: "uid-1", ConversationID: "conv-1", OwnerID: user.ID,
		Status: workflow.StatusGenerated, GeneratedLookID: &look.ID,
	}
	db.Create(&session)

	rec, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "tryon",
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusGenerated, response.Session.Status)
	assert.False(t, response.RequiresConfirmation)

	// with the selfie set the try-on cost dialog opens
	user.UserFullBodyImageURL = test.NewRefString("selfies/1/selfie.png")
	user.FullBodyAvatarSet = true
	db.Save(user)

	rec, response = postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "tryon",
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusTryOnConfirming, response.Session.Status)
	assert.Equal(t, workflow.CostTryOnCredits, response.EstimatedCostCredits)
	assert.True(t, response.View.TryOnPanelOpen)
}

func TestConfirmTryOnWithClearedSelfieRefunds(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)
	user.UserFullBodyImageURL = test.NewRefString("selfies/1/selfie.png")
	user.FullBodyAvatarSet = true
	db.Save(user)

	look := models.GeneratedLook{OwnerID: user.ID, Category: "top", Status: "completed"}
	db.Create(&look)
	session := models.WorkflowSession{
		SessionUID: "uid-s1", ConversationID: "conv-1", OwnerID: user.ID,
		Status: workflow.StatusGenerated, GeneratedLookID: &look.ID,
	}
	db.Create(&session)

	_, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "tryon",
	})
	assert.Equal(t, workflow.StatusTryOnConfirming, response.Session.Status)
	token := response.ConfirmationToken

	// the selfie disappears between arming and confirming
	db.Model(&models.UserAccount{}).Where("id = ?", user.ID).Update("user_full_body_image_url", nil)

	rec, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "confirm", ConfirmationToken: token,
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, workflow.StatusGenerated, response.Session.Status)
	assert.Equal(t, 0, response.CreditsUsedThisCall)
	if assert.NotNil(t, response.Session.ErrorCode) {
		assert.Equal(t, workflow.ErrCodeServiceUnavailable, *response.Session.ErrorCode)
	}

	status, _ := ledger.NewService(&ledger.GormCreditStore{DB: db}).GetStatus(user.ID, user.Tier)
	assert.Equal(t, 0, status.Used)
}

func TestCancelSessionEndpoint(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	_, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "quiero una camisa formal para una boda",
	})
	assert.Equal(t, workflow.StatusConfirming, response.Session.Status)
	uid := response.Session.SessionUID

	req := test.NewJSONAuthRequest("POST", fmt.Sprintf("/assistant/session/%s/cancel", uid), fmt.Sprint(user.ID), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	var cancelled AssistantTurnResponse
	json.Unmarshal(rec.Body.Bytes(), &cancelled)
	assert.Equal(t, workflow.StatusIdle, cancelled.Session.Status)
	assert.Nil(t, cancelled.Session.PendingAction)
}

func TestGetSessionSnapshot(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	_, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "message", Text: "hola",
	})
	uid := response.Session.SessionUID

	req := test.NewJSONAuthRequest("GET", fmt.Sprintf("/assistant/session/%s", uid), fmt.Sprint(user.ID), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	var snapshot AssistantTurnResponse
	json.Unmarshal(rec.Body.Bytes(), &snapshot)
	assert.Equal(t, uid, snapshot.Session.SessionUID)
	assert.Equal(t, workflow.StatusIdle, snapshot.Session.Status)

	// someone else's uid is not found
	other := test.FakeUserV2(db, "Other", "other@example.com", models.TierFree)
	req = test.NewJSONAuthRequest("GET", fmt.Sprintf("/assistant/session/%s", uid), fmt.Sprint(other.ID), nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestSetAutosave(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	autosave := false
	rec, response := postTurn(e, user.ID, AssistantMessageIn{
		ConversationID: "conv-1", Action: "set_autosave", Autosave: &autosave,
	})
	assert.Equal(t, 200, rec.Code)
	assert.False(t, response.Session.AutosaveEnabled)
	assert.Equal(t, languageutil.Message(language.Spanish, "autosave_updated"), response.Reply)
}
