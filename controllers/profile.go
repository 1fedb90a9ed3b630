package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"nadaapi/ledger"
	"nadaapi/models"
	"nadaapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type UserSettingsIn struct {
	ReceiveNotifications bool `json:"receive_notifications"`
}

type UserMeOut struct {
	Name                 string         `json:"name"`
	Email                string         `json:"email"`
	Tier                 models.Tier    `json:"tier"`
	AvatarURL            string         `json:"avatar_url"`
	FullBodyAvatarSet    bool           `json:"full_body_avatar_set"`
	FullBodyAvatarUrl    *string        `json:"full_body_avatar_url"`
	ReceiveNotifications bool           `json:"receive_notifications"`
	Credits              *ledger.Status `json:"credits,omitempty"`
}

type ProfileController struct {
	AWSService services.AWSServiceProvider
}

func (controller *ProfileController) ProfileRoutes(g *echo.Group) {
	g.GET("/me", controller.GetMe)
	g.POST("/settings", controller.UpdateSettings)
	g.PUT("/selfie", controller.SetSelfie)
	g.POST("/register-push", controller.RegisterPush)
	g.POST("/delete-push", controller.DeletePush)
}

func (controller *ProfileController) GetMe(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	fullbodyAvatarUrl := user.UserFullBodyImageURL
	if user.UserFullBodyImageURL != nil && *user.UserFullBodyImageURL != "" {
		bucketName := services.GetEnv("R2_BUCKET_NAME", "")
		avatarR2URL, err := controller.AWSService.GetPresignedR2FileReadURL(context.Background(), bucketName, *user.UserFullBodyImageURL)
		if err != nil {
			log.Printf("CRITICAL: R2 selfie could not fetch for key '%s': %v", *user.UserFullBodyImageURL, err)
			sentry.CaptureException(err)
		}
		fullbodyAvatarUrl = &avatarR2URL
	}

	var credits *ledger.Status
	if status, err := creditServiceFor(db).GetStatus(user.ID, user.Tier); err == nil {
		credits = &status
	} else {
		sentry.CaptureException(fmt.Errorf("[User %v] Error reading credit status for profile: %v", user.ID, err))
	}

	return c.JSON(http.StatusOK, UserMeOut{
		Name:                 user.Name,
		Email:                user.Email,
		Tier:                 user.Tier,
		AvatarURL:            user.AvatarURL,
		FullBodyAvatarSet:    user.FullBodyAvatarSet,
		FullBodyAvatarUrl:    fullbodyAvatarUrl,
		ReceiveNotifications: user.ReceiveNotifications,
		Credits:              credits,
	})
}

func (controller *ProfileController) UpdateSettings(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	var settingsIn = new(UserSettingsIn)
	if err := c.Bind(settingsIn); err != nil {
		return err
	}
	user.ReceiveNotifications = settingsIn.ReceiveNotifications
	db.Save(&user)
	return c.JSON(http.StatusOK, settingsIn)
}

// SetSelfie presigns the upload slot for the full body selfie required by
// try-on generation. The client uploads to the returned URL afterwards.
func (controller *ProfileController) SetSelfie(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	var req models.UserSelfieIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if !services.IsAllowedImageFile(req.FileName) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unsupported image format"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var bucketName = services.GetEnv("R2_BUCKET_NAME", "")
	safeFileName := fmt.Sprintf("selfies/%v/%s", user.ID, req.FileName)

	uploadUrl, presignErr := controller.AWSService.PresignLink(context.Background(), bucketName, safeFileName)
	if presignErr != nil {
		log.Printf("Unable to presign selfie upload for %s!, %s", user.Name, presignErr)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"message": "Error while uploading your selfie, please try again",
		})
	}
	user.UserFullBodyImageURL = &safeFileName
	user.FullBodyAvatarSet = true
	if err := db.Save(&user).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to save your selfie"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Selfie is updated successfully", "upload_url": uploadUrl, "file_name": req.FileName})
}

func (controller *ProfileController) RegisterPush(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	var tokenRequest = new(models.UserPushIn)
	if err := c.Bind(tokenRequest); err != nil {
		return err
	}
	if !models.ValidatePlatformRaw(tokenRequest.Platform) {
		return c.JSON(http.StatusForbidden, map[string]interface{}{"message": "Please provide proper platform parameter"})
	}
	var pushData models.UserPushToken = models.UserPushToken{
		Platform:      models.Platform(tokenRequest.Platform),
		Token:         tokenRequest.Token,
		UserAccountID: user.ID,
		Active:        true,
	}

	// same token/device can sign in to diff accs and still receive pushes
	result := db.Where("token = ? and user_account_id = ?", tokenRequest.Token, user.ID).FirstOrCreate(&pushData)
	if result.Error != nil {
		log.Println(result.Error)
		return echo.ErrInternalServerError
	}
	fmt.Println("Push id ", pushData.ID, " Token ", pushData.Token, " Platform: ", pushData.Platform, "User ID:", pushData.UserAccountID)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "registered",
		"push_id": pushData.ID,
	})
}

func (controller *ProfileController) DeletePush(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	var tokenRequest = new(models.UserPushIn)
	if err := c.Bind(tokenRequest); err != nil {
		return err
	}
	if !models.ValidatePlatformRaw(tokenRequest.Platform) {
		return c.JSON(http.StatusForbidden, map[string]interface{}{"message": "Please provide proper platform parameter"})
	}

	result := db.Where("token = ? and user_account_id = ? and platform = ?", tokenRequest.Token, user.ID, tokenRequest.Platform).Delete(&models.UserPushToken{})
	if result.Error != nil {
		log.Println(result.Error)
		return echo.ErrInternalServerError
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "deleted",
		"deleted": result.RowsAffected > 0,
	})
}
