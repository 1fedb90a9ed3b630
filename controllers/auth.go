package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"nadaapi/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type DeviceSignInIn struct {
	DeviceID string `json:"device_id" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email,max=200"`
	Name     string `json:"name" validate:"omitempty,max=100"`
	Platform string `json:"platform" validate:"required"`
}

type AuthController struct {
}

func (m *AuthController) AuthRoutes(g *echo.Group) {
	g.POST("/device", m.DeviceSignIn)
	g.POST("/refresh-token", m.RefreshToken)
}

// DeviceSignIn signs a mobile client in by its stable device identifier,
// creating the account on first contact. Identity verification happens at
// the gateway, this service only issues its own token pair.
func (m *AuthController) DeviceSignIn(c echo.Context) error {
	var req DeviceSignInIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if !models.ValidatePlatformRaw(req.Platform) {
		return c.JSON(http.StatusForbidden, map[string]interface{}{"message": "Please provide proper platform parameter"})
	}
	db := c.Get("__db").(*gorm.DB)

	var user models.UserAccount
	r := db.Where("email = ?", req.Email).Limit(1).Find(&user)
	if r.Error != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"message": "Internal server error"})
	}
	isNew := r.RowsAffected == 0
	if isNew {
		user = models.UserAccount{
			Name:     req.Name,
			Email:    req.Email,
			Platform: models.Platform(req.Platform),
			DeviceID: req.DeviceID,
			LastIp:   c.RealIP(),
			Tier:     models.TierFree,
		}
		if err := db.Create(&user).Error; err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{"message": "Internal server error"})
		}
		fmt.Println("User onboarding finished: ", user.Email, " ID: ", user.ID)
	} else {
		if user.Banned {
			return echo.ErrForbidden
		}
		user.DeviceID = req.DeviceID
		user.LastIp = c.RealIP()
		user.Platform = models.Platform(req.Platform)
		if req.Name != "" {
			user.Name = req.Name
		}
		db.Save(&user)
	}

	refreshToken, err := GenerateRefreshToken(fmt.Sprint(user.ID))
	if err != nil {
		fmt.Println(err)
		return echo.ErrInternalServerError
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":            user.ID,
		"name":          user.Name,
		"email":         user.Email,
		"tier":          user.Tier,
		"new":           isNew,
		"avatar":        user.AvatarURL,
		"access_token":  GenerateUserToken(fmt.Sprint(user.ID), c, 72),
		"refresh_token": refreshToken,
	})
}

func (m *AuthController) RefreshToken(c echo.Context) error {
	type tokenReqBody struct {
		RefreshToken string `json:"refresh_token"`
	}
	tokenReq := new(tokenReqBody)

	if err := c.Bind(&tokenReq); err != nil {
		fmt.Println(err)
		return echo.ErrBadRequest
	}
	if tokenReq.RefreshToken == "" {
		fmt.Println("Refresh token is empty")
		return echo.ErrBadRequest
	}
	token, err := jwt.Parse(tokenReq.RefreshToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil {
		fmt.Println(err)
		return echo.ErrBadRequest
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		db := c.Get("__db").(*gorm.DB)
		data, okConvert := claims["sub"].(string)
		if !okConvert {
			fmt.Println("Cannot convert sub to string!")
			return echo.ErrInternalServerError
		}
		userId, err := strconv.Atoi(data)
		if err != nil {
			fmt.Println("Error parsing sub of the user!!", err)
			return echo.ErrInternalServerError
		}
		if userId < 1 {
			fmt.Println("Refresh: sub is:", userId)
			return echo.ErrBadRequest
		}
		var user *models.UserAccount
		result := db.First(&user, userId)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			fmt.Println("Requested user not found!", userId)
			return echo.ErrForbidden
		}
		if result.Error != nil {
			fmt.Println("Error getting user while refreshing token", userId)
			return echo.ErrInternalServerError
		}
		if user.Banned {
			return echo.ErrUnauthorized
		}

		t := GenerateUserToken(fmt.Sprint(userId), c, 72)
		rt, err := GenerateRefreshToken(fmt.Sprint(userId))
		if err != nil {
			fmt.Println("Error refreshing token ", err)
			return echo.ErrInternalServerError
		}
		return c.JSON(http.StatusOK, echo.Map{
			"access_token":  t,
			"refresh_token": rt,
		})
	}
	return err
}
