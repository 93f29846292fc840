package rest

import (
	"github.com/kairosocial/kairo/pkg/pubworker"
	"github.com/kairosocial/kairo/pkg/rategov"
	"github.com/kairosocial/kairo/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Stats struct {
	Governor *rategov.Governor
	Pool     *pubworker.PublishWorkerPool
}

func InitRestStats(app fiber.Router, governor *rategov.Governor, pool *pubworker.PublishWorkerPool) Stats {
	rest := Stats{Governor: governor, Pool: pool}
	app.Get("/stats/governor", rest.GovernorStats)
	app.Get("/stats/workerpool", rest.WorkerPoolStats)
	return rest
}

// GovernorStats returns per-account quota consumption snapshots.
func (controller *Stats) GovernorStats(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch governor stats",
		Results: controller.Governor.Stats(),
	})
}

// WorkerPoolStats returns real-time publish worker pool statistics.
func (controller *Stats) WorkerPoolStats(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch worker pool stats",
		Results: controller.Pool.GetStats(),
	})
}
