package rest

import (
	domainPost "github.com/kairosocial/kairo/domains/post"
	"github.com/kairosocial/kairo/pkg/utils"
	"github.com/kairosocial/kairo/validations"
	"github.com/gofiber/fiber/v2"
)

type Post struct {
	Service domainPost.IPostUsecase
}

func InitRestPost(app fiber.Router, service domainPost.IPostUsecase) Post {
	rest := Post{Service: service}
	app.Post("/posts", rest.Create)
	app.Get("/posts", rest.List)
	app.Get("/posts/:id", rest.GetByID)
	app.Delete("/posts/:id", rest.Delete)
	return rest
}

func (controller *Post) Create(c *fiber.Ctx) error {
	var request domainPost.CreatePostRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = validations.ValidateCreatePost(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	post, err := controller.Service.Create(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success create post",
		Results: post,
	})
}

func (controller *Post) List(c *fiber.Ctx) error {
	accountID := c.Query("account_id")
	if accountID == "" {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: "account_id is required",
		})
	}

	posts, err := controller.Service.List(c.UserContext(), accountID)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch posts",
		Results: posts,
	})
}

func (controller *Post) GetByID(c *fiber.Ctx) error {
	post, err := controller.Service.GetByID(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch post",
		Results: post,
	})
}

func (controller *Post) Delete(c *fiber.Ctx) error {
	err := controller.Service.Delete(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success delete post",
	})
}
