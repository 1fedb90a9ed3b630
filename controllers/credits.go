package controllers

import (
	"fmt"
	"net/http"

	"nadaapi/languageutil"
	"nadaapi/ledger"
	"nadaapi/models"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type RewardClaimIn struct {
	// raw client device identifier, hashed before it touches storage
	DeviceID string `json:"device_id" validate:"required,max=200"`
}

type RewardClaimResponse struct {
	Granted       bool          `json:"granted"`
	BonusCredits  int           `json:"bonus_credits,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Message       string        `json:"message"`
	Credits       ledger.Status `json:"credits"`
	ClaimsAllowed int           `json:"claims_allowed_per_period"`
}

type CreditsController struct{}

func (controller *CreditsController) CreditRoutes(g *echo.Group) {
	g.GET("/status", controller.GetStatus)
	g.POST("/reward/claim", controller.ClaimReward)
}

// GetStatus returns the monthly usage summary for the meter widget.
func (controller *CreditsController) GetStatus(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	status, err := creditServiceFor(db).GetStatus(user.ID, user.Tier)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[User %v] Error reading credit status: %v", user.ID, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch credit status"})
	}
	return c.JSON(http.StatusOK, status)
}

// ClaimReward grants the bonus credits when the device guard allows it.
// The guard is checked and recorded against the hashed device fingerprint,
// never the raw identifier.
func (controller *CreditsController) ClaimReward(c echo.Context) error {
	var req RewardClaimIn
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
	locale := languageutil.Match(c.Request().Header.Get("Accept-Language"))

	guard := ledger.NewDeviceGuard(&ledger.GormDeviceStore{DB: db})
	fingerprint := ledger.FingerprintDevice(req.DeviceID)

	decision, err := guard.CanClaimReward(fingerprint)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[User %v] Error checking reward claim: %v", user.ID, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to check reward eligibility"})
	}

	creditService := creditServiceFor(db)
	if !decision.Allowed {
		status, _ := creditService.GetStatus(user.ID, user.Tier)
		return c.JSON(http.StatusForbidden, RewardClaimResponse{
			Granted:       false,
			Reason:        decision.Reason,
			Message:       languageutil.Message(locale, "reward_denied"),
			Credits:       status,
			ClaimsAllowed: ledger.MaxRewardClaimsPerDevicePerPeriod,
		})
	}

	if err := creditService.GrantBonus(user.ID, user.Tier, ledger.RewardBonusCredits); err != nil {
		sentry.CaptureException(fmt.Errorf("[User %v] Error granting reward bonus: %v", user.ID, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to grant reward"})
	}
	if err := guard.RecordClaim(fingerprint, UIntToStr(user.ID)); err != nil {
		sentry.CaptureException(fmt.Errorf("[User %v] Error recording reward claim: %v", user.ID, err))
	}

	status, _ := creditService.GetStatus(user.ID, user.Tier)
	return c.JSON(http.StatusOK, RewardClaimResponse{
		Granted:       true,
		BonusCredits:  ledger.RewardBonusCredits,
		Message:       languageutil.Messagef(locale, "reward_granted", ledger.RewardBonusCredits),
		Credits:       status,
		ClaimsAllowed: ledger.MaxRewardClaimsPerDevicePerPeriod,
	})
}
