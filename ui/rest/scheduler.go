package rest

import (
	"errors"
	"strings"

	domainScheduler "github.com/kairosocial/kairo/domains/scheduler"
	"github.com/kairosocial/kairo/pkg/utils"
	"github.com/kairosocial/kairo/validations"
	"github.com/gofiber/fiber/v2"
)

type Scheduler struct {
	Service domainScheduler.ISchedulerUsecase
}

func InitRestScheduler(app fiber.Router, service domainScheduler.ISchedulerUsecase) Scheduler {
	rest := Scheduler{Service: service}
	app.Post("/tasks", rest.SchedulePost)
	app.Get("/tasks", rest.ListTasks)
	app.Get("/tasks/:id", rest.GetTaskStatus)
	app.Delete("/tasks/:id", rest.CancelTask)
	return rest
}

func (controller *Scheduler) SchedulePost(c *fiber.Ctx) error {
	var request domainScheduler.SchedulePostRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = validations.ValidateSchedulePost(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	task, err := controller.Service.SchedulePost(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success schedule post",
		Results: task,
	})
}

func (controller *Scheduler) GetTaskStatus(c *fiber.Ctx) error {
	task, err := controller.Service.GetTaskStatus(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch task status",
		Results: task,
	})
}

func (controller *Scheduler) ListTasks(c *fiber.Ctx) error {
	var states []domainScheduler.TaskState
	if raw := c.Query("states"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			states = append(states, domainScheduler.TaskState(strings.TrimSpace(s)))
		}
	}

	tasks, err := controller.Service.ListTasks(c.UserContext(), c.Query("account_id"), states)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch tasks",
		Results: tasks,
	})
}

func (controller *Scheduler) CancelTask(c *fiber.Ctx) error {
	err := controller.Service.CancelTask(c.UserContext(), c.Params("id"))
	if errors.Is(err, domainScheduler.ErrAlreadyPublishing) {
		return c.Status(409).JSON(utils.ResponseData{
			Status:  409,
			Code:    "ALREADY_PUBLISHING",
			Message: err.Error(),
		})
	}
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success cancel task",
	})
}
