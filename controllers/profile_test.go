package controllers

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"nadaapi/dbhelper"
	"nadaapi/models"
	"nadaapi/test"

	"github.com/stretchr/testify/assert"
)

func TestGetMe(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("GET", "/profile/me", fmt.Sprint(user.ID), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	var me UserMeOut
	json.Unmarshal(rec.Body.Bytes(), &me)
	assert.Equal(t, user.Name, me.Name)
	assert.Equal(t, user.Email, me.Email)
	assert.Equal(t, models.TierFree, me.Tier)
	assert.False(t, me.FullBodyAvatarSet)
	if assert.NotNil(t, me.Credits) {
		assert.Equal(t, 200, me.Credits.Limit)
		assert.Equal(t, 0, me.Credits.Used)
	}
}

func TestSetSelfie(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("PUT", "/profile/selfie", fmt.Sprint(user.ID), models.UserSelfieIn{FileName: "selfie.png"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	var response map[string]string
	json.Unmarshal(rec.Body.Bytes(), &response)
	assert.Equal(t, fmt.Sprintf("https://fakebucketurl.com/selfies/%v/selfie.png", user.ID), response["upload_url"])

	var reloaded models.UserAccount
	db.First(&reloaded, user.ID)
	assert.True(t, reloaded.FullBodyAvatarSet)
	if assert.NotNil(t, reloaded.UserFullBodyImageURL) {
		assert.Equal(t, fmt.Sprintf("selfies/%v/selfie.png", user.ID), *reloaded.UserFullBodyImageURL)
	}
}

func TestSetSelfieRejectsUnsupportedFormat(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("PUT", "/profile/selfie", fmt.Sprint(user.ID), models.UserSelfieIn{FileName: "selfie.exe"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestUpdateSettings(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("POST", "/profile/settings", fmt.Sprint(user.ID), UserSettingsIn{ReceiveNotifications: true})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	var reloaded models.UserAccount
	db.First(&reloaded, user.ID)
	assert.True(t, reloaded.ReceiveNotifications)
}

func TestPushTokenLifecycle(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("POST", "/profile/register-push", fmt.Sprint(user.ID), models.UserPushIn{
		Token: "push-token-1", Platform: "ios",
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	var count int64
	db.Model(&models.UserPushToken{}).Where("token = ? AND user_account_id = ?", "push-token-1", user.ID).Count(&count)
	assert.Equal(t, int64(1), count)

	// registering the same token twice does not duplicate it
	req = test.NewJSONAuthRequest("POST", "/profile/register-push", fmt.Sprint(user.ID), models.UserPushIn{
		Token: "push-token-1", Platform: "ios",
	})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
	db.Model(&models.UserPushToken{}).Where("token = ? AND user_account_id = ?", "push-token-1", user.ID).Count(&count)
	assert.Equal(t, int64(1), count)

	req = test.NewJSONAuthRequest("POST", "/profile/delete-push", fmt.Sprint(user.ID), models.UserPushIn{
		Token: "push-token-1", Platform: "ios",
	})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
	db.Model(&models.UserPushToken{}).Where("token = ? AND user_account_id = ?", "push-token-1", user.ID).Count(&count)
	assert.Equal(t, int64(0), count)
}
