package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"nadaapi/models"
	"nadaapi/services"

	firebase "firebase.google.com/go/v4"
	"github.com/go-playground/validator"
	"github.com/hibiken/asynq"
	echojwt "github.com/labstack/echo-jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func SetupServer(
	db *gorm.DB,
	awsService services.AWSServiceProvider,
	urlCache services.URLCacheServiceProvider,
	firebaseApp *firebase.App,
	asynqClient *asynq.Client,
	asynqInspector *asynq.Inspector,
) *echo.Echo {

	fmt.Println(firebaseApp, "Firebase app")
	err := awsService.InitPresignClient(context.Background())
	if err != nil {
		log.Fatal("Failed to initialize AWS provider: S3")
	}

	e := echo.New()
	v := validator.New()
	v.RegisterValidation("platform", models.ValidatePlatform)
	v.RegisterValidation("tier", models.ValidateTier)
	e.Validator = &CustomValidator{validator: v}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("__db", db)
			c.Set("__asynqclient", asynqClient)
			c.Set("__asynqinspector", asynqInspector)
			return next(c)
		}
	})

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "Accept-Language", echo.HeaderAuthorization},
	}))

	authController := AuthController{}
	authGroup := e.Group("auth")
	authController.AuthRoutes(authGroup)

	apiGroup := e.Group("", echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))))
	apiGroup.Use(UserMiddleware)

	workflowController := WorkflowController{AWSService: awsService, FirebaseApp: firebaseApp, URLCache: urlCache}
	assistantGroup := apiGroup.Group("/assistant")
	workflowController.AssistantRoutes(assistantGroup)

	creditsController := CreditsController{}
	creditsGroup := apiGroup.Group("/credits")
	creditsController.CreditRoutes(creditsGroup)

	looksController := LooksController{AWSService: awsService, URLCache: urlCache}
	looksGroup := apiGroup.Group("/looks")
	looksController.LookRoutes(looksGroup)

	profileController := ProfileController{AWSService: awsService}
	profileGroup := apiGroup.Group("/profile")
	profileController.ProfileRoutes(profileGroup)

	return e
}
