package rest

import (
	"errors"

	domainAccount "github.com/kairosocial/kairo/domains/account"
	domainCredential "github.com/kairosocial/kairo/domains/credential"
	"github.com/kairosocial/kairo/pkg/utils"
	"github.com/kairosocial/kairo/validations"
	"github.com/gofiber/fiber/v2"
)

type Account struct {
	Service     domainAccount.IAccountUsecase
	Credentials domainCredential.ICredentialUsecase
}

func InitRestAccount(app fiber.Router, service domainAccount.IAccountUsecase, credentials domainCredential.ICredentialUsecase) Account {
	rest := Account{Service: service, Credentials: credentials}
	app.Post("/accounts", rest.Create)
	app.Get("/accounts", rest.List)
	app.Get("/accounts/:id", rest.GetByID)
	app.Put("/accounts/:id/engagement", rest.UpdateEngagement)
	app.Post("/accounts/:id/connect", rest.Connect)
	app.Get("/accounts/:id/credential", rest.GetCredential)
	return rest
}

func (controller *Account) Create(c *fiber.Ctx) error {
	var request domainAccount.CreateAccountRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	if request.Username == "" {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: "username is required",
		})
	}

	account, err := controller.Service.Create(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success create account",
		Results: account,
	})
}

func (controller *Account) List(c *fiber.Ctx) error {
	accounts, err := controller.Service.List(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch accounts",
		Results: accounts,
	})
}

func (controller *Account) GetByID(c *fiber.Ctx) error {
	account, err := controller.Service.GetByID(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch account",
		Results: account,
	})
}

func (controller *Account) UpdateEngagement(c *fiber.Ctx) error {
	var profile domainAccount.EngagementProfile
	err := c.BodyParser(&profile)
	utils.PanicIfNeeded(err)

	err = controller.Service.UpdateEngagement(c.UserContext(), c.Params("id"), profile)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success update engagement profile",
	})
}

// Connect exchanges an OAuth code for a credential lease on the account.
func (controller *Account) Connect(c *fiber.Ctx) error {
	var request domainCredential.ConnectRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)
	request.AccountID = c.Params("id")

	err = validations.ValidateConnect(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	lease, err := controller.Credentials.Connect(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success connect account",
		Results: lease,
	})
}

func (controller *Account) GetCredential(c *fiber.Ctx) error {
	lease, err := controller.Credentials.GetLease(c.UserContext(), c.Params("id"))
	if errors.Is(err, domainCredential.ErrCredentialUnavailable) {
		return c.Status(404).JSON(utils.ResponseData{
			Status:  404,
			Code:    "NOT_FOUND_ERROR",
			Message: "no credential lease stored for this account",
		})
	}
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch credential lease",
		Results: lease,
	})
}
