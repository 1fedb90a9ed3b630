package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"nadaapi/models"
	"nadaapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type LookResponse struct {
	ID        uint    `json:"id"`
	Prompt    string  `json:"prompt"`
	Category  string  `json:"category"`
	Occasion  *string `json:"occasion"`
	Style     *string `json:"style"`
	Status    string  `json:"status"`
	Saved     bool    `json:"saved"`
	Uri       *string `json:"uri,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type LooksListResponse struct {
	Tops    []LookResponse `json:"tops"`
	Bottoms []LookResponse `json:"bottoms"`
	Shoes   []LookResponse `json:"shoes"`
}

type TryOnResponse struct {
	ID        uint    `json:"id"`
	LookID    *uint   `json:"look_id"`
	Status    string  `json:"status"`
	Uri       *string `json:"uri,omitempty"`
	CreatedAt string  `json:"created_at"`
}

type LooksController struct {
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
}

func (controller *LooksController) LookRoutes(g *echo.Group) {
	g.GET("/list", controller.ListLooks)
	g.GET("/tryons", controller.ListTryOns)
	g.POST("/:id/save", controller.SaveLook)
}

// populatePresignedLookImages enriches raw look models with presigned read URLs
// concurrently, with a direct R2 presign failsafe when the cache layer fails.
func (controller *LooksController) populatePresignedLookImages(ctx context.Context, looks []models.GeneratedLook) []LookResponse {
	if len(looks) == 0 {
		return []LookResponse{}
	}

	var wg sync.WaitGroup
	processedResponses := make([]LookResponse, len(looks))
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")

	for i, lookItem := range looks {
		wg.Add(1)
		go func(index int, item models.GeneratedLook) {
			defer wg.Done()

			var imageUrl string
			if item.ImageURL != nil && *item.ImageURL != "" {
				objectKey := *item.ImageURL

				url, err := controller.URLCache.GetReadURL(ctx, objectKey)
				if err == nil {
					imageUrl = url
				} else {
					log.Printf("CACHE WARNING: Cache system failed for key '%s': %v. Triggering manual R2 fallback.", objectKey, err)
					sentry.WithScope(func(scope *sentry.Scope) {
						scope.SetTag("failure_type", "cache_system")
						scope.SetExtra("objectKey", objectKey)
						sentry.CaptureException(err)
					})

					fallbackUrl, fallbackErr := controller.AWSService.GetPresignedR2FileReadURL(ctx, bucketName, objectKey)
					if fallbackErr != nil {
						log.Printf("CRITICAL: Manual R2 fallback also failed for key '%s': %v", objectKey, fallbackErr)
						sentry.CaptureException(fallbackErr)
					} else {
						imageUrl = fallbackUrl
					}
				}
			}
			processedResponses[index] = LookResponse{
				ID:        item.ID,
				Prompt:    item.Prompt,
				Category:  item.Category,
				Occasion:  item.Occasion,
				Style:     item.Style,
				Status:    item.Status,
				Saved:     item.Saved,
				Uri:       &imageUrl,
				CreatedAt: item.CreatedAt.Format("2006-01-02T15:04:05Z"),
				UpdatedAt: item.UpdatedAt.Format("2006-01-02T15:04:05Z"),
			}
		}(i, lookItem)
	}

	wg.Wait()
	return processedResponses
}

func (controller *LooksController) ListLooks(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var looks []models.GeneratedLook
	if err := db.Where("owner_id = ? AND saved = ? AND status = ?", user.ID, true, "completed").Order("created_at DESC").Find(&looks).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch looks"})
	}

	processedResponses := controller.populatePresignedLookImages(c.Request().Context(), looks)

	response := LooksListResponse{
		Tops:    []LookResponse{},
		Bottoms: []LookResponse{},
		Shoes:   []LookResponse{},
	}
	for _, resp := range processedResponses {
		switch resp.Category {
		case "top":
			response.Tops = append(response.Tops, resp)
		case "bottom":
			response.Bottoms = append(response.Bottoms, resp)
		case "shoes":
			response.Shoes = append(response.Shoes, resp)
		}
	}

	return c.JSON(http.StatusOK, response)
}

func (controller *LooksController) ListTryOns(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var tryOns []models.TryOnGeneration
	if err := db.Where("user_account_id = ? AND status = ?", user.ID, "completed").Order("created_at DESC").Find(&tryOns).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch try-ons"})
	}

	ctx := c.Request().Context()
	responses := make([]TryOnResponse, len(tryOns))
	var wg sync.WaitGroup
	for i, tryOnItem := range tryOns {
		wg.Add(1)
		go func(index int, item models.TryOnGeneration) {
			defer wg.Done()
			var imageUrl string
			if item.TryOnPreviewImageURL != nil && *item.TryOnPreviewImageURL != "" {
				url, err := controller.URLCache.GetReadURL(ctx, *item.TryOnPreviewImageURL)
				if err != nil {
					sentry.CaptureException(err)
				} else {
					imageUrl = url
				}
			}
			responses[index] = TryOnResponse{
				ID:        item.ID,
				LookID:    item.LookID,
				Status:    item.Status,
				Uri:       &imageUrl,
				CreatedAt: item.CreatedAt.Format("2006-01-02T15:04:05Z"),
			}
		}(i, tryOnItem)
	}
	wg.Wait()

	return c.JSON(http.StatusOK, map[string]interface{}{"tryons": responses})
}

// SaveLook persists a completed look to the user collection so it survives
// autosave being off.
func (controller *LooksController) SaveLook(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var look models.GeneratedLook
	if err := db.Where("id = ? AND owner_id = ?", c.Param("id"), user.ID).First(&look).Error; err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Look not found"})
	}
	if look.Status != "completed" {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Look is not ready yet"})
	}

	if !look.Saved {
		look.Saved = true
		if err := db.Save(&look).Error; err != nil {
			sentry.CaptureException(fmt.Errorf("[User %v] Error saving look %v: %v", user.ID, look.ID, err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save look"})
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"id": look.ID, "saved": look.Saved})
}
