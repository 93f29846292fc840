package rest

import (
	domainCampaign "github.com/kairosocial/kairo/domains/campaign"
	"github.com/kairosocial/kairo/pkg/utils"
	"github.com/kairosocial/kairo/validations"
	"github.com/gofiber/fiber/v2"
)

type Campaign struct {
	Service domainCampaign.ICampaignUsecase
}

func InitRestCampaign(app fiber.Router, service domainCampaign.ICampaignUsecase) Campaign {
	rest := Campaign{Service: service}
	app.Post("/campaigns", rest.Create)
	app.Get("/campaigns/:id", rest.GetByID)
	app.Post("/campaigns/:id/members", rest.AddMember)
	app.Get("/campaigns/:id/members", rest.Members)
	app.Post("/campaigns/:id/plan", rest.Plan)
	app.Post("/campaigns/:id/replan", rest.Replan)
	app.Get("/campaigns/:id/plan", rest.GetPlan)
	return rest
}

func (controller *Campaign) Create(c *fiber.Ctx) error {
	var request domainCampaign.CreateCampaignRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = validations.ValidateCreateCampaign(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	campaign, err := controller.Service.Create(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success create campaign",
		Results: campaign,
	})
}

func (controller *Campaign) GetByID(c *fiber.Ctx) error {
	campaign, err := controller.Service.GetByID(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch campaign",
		Results: campaign,
	})
}

func (controller *Campaign) AddMember(c *fiber.Ctx) error {
	var request domainCampaign.Member
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = validations.ValidateAddMember(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	err = controller.Service.AddMember(c.UserContext(), c.Params("id"), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success add campaign member",
	})
}

func (controller *Campaign) Members(c *fiber.Ctx) error {
	members, err := controller.Service.Members(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch campaign members",
		Results: members,
	})
}

func (controller *Campaign) Plan(c *fiber.Ctx) error {
	var opts domainCampaign.PlanOptions
	if len(c.Body()) > 0 {
		err := c.BodyParser(&opts)
		utils.PanicIfNeeded(err)
	}

	plan, err := controller.Service.PlanCampaign(c.UserContext(), c.Params("id"), opts)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success generate campaign plan",
		Results: plan,
	})
}

func (controller *Campaign) Replan(c *fiber.Ctx) error {
	var opts domainCampaign.PlanOptions
	if len(c.Body()) > 0 {
		err := c.BodyParser(&opts)
		utils.PanicIfNeeded(err)
	}

	plan, err := controller.Service.Replan(c.UserContext(), c.Params("id"), opts)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success replan campaign",
		Results: plan,
	})
}

func (controller *Campaign) GetPlan(c *fiber.Ctx) error {
	plan, err := controller.Service.GetPlan(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch campaign plan",
		Results: plan,
	})
}
