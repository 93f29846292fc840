package rest

import (
	"github.com/kairosocial/kairo/core/config"
	"github.com/kairosocial/kairo/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type Health struct {
	DB *gorm.DB
}

func InitRestHealth(app fiber.Router, db *gorm.DB) Health {
	rest := Health{DB: db}
	app.Get("/health", rest.Status)
	return rest
}

func (controller *Health) Status(c *fiber.Ctx) error {
	sqlDB, err := controller.DB.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		return c.Status(503).JSON(utils.ResponseData{
			Status:  503,
			Code:    "SERVICE_UNAVAILABLE",
			Message: "database unreachable: " + err.Error(),
		})
	}

	version := "unknown"
	if config.Global != nil {
		version = config.Global.App.Version
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Service healthy",
		Results: fiber.Map{"version": version},
	})
}
