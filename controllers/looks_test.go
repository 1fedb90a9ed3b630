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

func TestListLooksGroupsByCategory(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	top := models.GeneratedLook{
		OwnerID: user.ID, Category: "top", Status: "completed", Saved: true,
		Prompt: "camisa formal", ImageURL: test.NewRefString("looks/1/top.png"),
	}
	db.Create(&top)
	shoes := models.GeneratedLook{
		OwnerID: user.ID, Category: "shoes", Status: "completed", Saved: true,
		ImageURL: test.NewRefString("looks/1/shoes.png"),
	}
	db.Create(&shoes)
	// unsaved and pending looks never show up in the collection
	db.Create(&models.GeneratedLook{OwnerID: user.ID, Category: "bottom", Status: "completed", Saved: false})
	db.Create(&models.GeneratedLook{OwnerID: user.ID, Category: "top", Status: "pending", Saved: true})

	req := test.NewJSONAuthRequest("GET", "/looks/list", fmt.Sprint(user.ID), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	var response LooksListResponse
	json.Unmarshal(rec.Body.Bytes(), &response)
	assert.Len(t, response.Tops, 1)
	assert.Len(t, response.Shoes, 1)
	assert.Len(t, response.Bottoms, 0)
	assert.Equal(t, top.ID, response.Tops[0].ID)
	assert.Equal(t, "camisa formal", response.Tops[0].Prompt)
	if assert.NotNil(t, response.Tops[0].Uri) {
		assert.Equal(t, "https://fakebucketurl.com/read", *response.Tops[0].Uri)
	}
}

func TestListLooksScopedToOwner(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	owner := test.FakeUser(db)
	other := test.FakeUserV2(db, "Other", "other@example.com", models.TierFree)

	db.Create(&models.GeneratedLook{OwnerID: owner.ID, Category: "top", Status: "completed", Saved: true})

	req := test.NewJSONAuthRequest("GET", "/looks/list", fmt.Sprint(other.ID), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	var response LooksListResponse
	json.Unmarshal(rec.Body.Bytes(), &response)
	assert.Len(t, response.Tops, 0)
}

func TestSaveLook(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	look := models.GeneratedLook{OwnerID: user.ID, Category: "top", Status: "completed"}
	db.Create(&look)

	req := test.NewJSONAuthRequest("POST", fmt.Sprintf("/looks/%v/save", look.ID), fmt.Sprint(user.ID), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	var saved models.GeneratedLook
	db.First(&saved, look.ID)
	assert.True(t, saved.Saved)

	// saving again is a no-op, not an error
	req = test.NewJSONAuthRequest("POST", fmt.Sprintf("/looks/%v/save", look.ID), fmt.Sprint(user.ID), nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestSaveLookRejectsPendingAndForeign(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)
	other := test.FakeUserV2(db, "Other", "other@example.com", models.TierFree)

	pending := models.GeneratedLook{OwnerID: user.ID, Category: "top", Status: "pending"}
	db.Create(&pending)

	req := test.NewJSONAuthRequest("POST", fmt.Sprintf("/looks/%v/save", pending.ID), fmt.Sprint(user.ID), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 409, rec.Code)

	req = test.NewJSONAuthRequest("POST", fmt.Sprintf("/looks/%v/save", pending.ID), fmt.Sprint(other.ID), nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestListTryOns(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := setupTestServer(db)
	user := test.FakeUser(db)

	look := models.GeneratedLook{OwnerID: user.ID, Category: "top", Status: "completed", Saved: true}
	db.Create(&look)
	session := models.WorkflowSession{SessionUID: "uid-t1", ConversationID: "conv-t1", OwnerID: user.ID, Status: "generated"}
	db.Create(&session)
	tryOn := models.TryOnGeneration{
		WorkflowSessionID: session.ID, LookID: &look.ID, UserAccountID: user.ID,
		GeneratedWithSelfieURL: "selfies/1/selfie.png",
		TryOnPreviewImageURL:   test.NewRefString("tryons/1/result.png"),
		Status:                 "completed",
	}
	db.Create(&tryOn)
	db.Create(&models.TryOnGeneration{
		WorkflowSessionID: session.ID, UserAccountID: user.ID,
		GeneratedWithSelfieURL: "selfies/1/selfie.png", Status: "failed",
	})

	req := test.NewJSONAuthRequest("GET", "/looks/tryons", fmt.Sprint(user.ID), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	var response struct {
		TryOns []TryOnResponse `json:"tryons"`
	}
	json.Unmarshal(rec.Body.Bytes(), &response)
	assert.Len(t, response.TryOns, 1)
	assert.Equal(t, tryOn.ID, response.TryOns[0].ID)
	if assert.NotNil(t, response.TryOns[0].Uri) {
		assert.Equal(t, "https://fakebucketurl.com/read", *response.TryOns[0].Uri)
	}
}
