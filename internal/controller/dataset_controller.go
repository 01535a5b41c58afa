package controller

import (
	"fmt"

	"data-explorer-be/internal/pkg/serverutils"
	"data-explorer-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IDatasetController interface {
	RegisterRoutes(r fiber.Router, middleware ...fiber.Handler)
	Upload(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Profile(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
	Export(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
}

type datasetController struct {
	service service.IExplorerService
}

func NewDatasetController(service service.IExplorerService) IDatasetController {
	return &datasetController{service: service}
}

func (c *datasetController) RegisterRoutes(r fiber.Router, middleware ...fiber.Handler) {
	h := r.Group("/dataset/v1", middleware...)
	h.Post("/upload", c.Upload)
	h.Get("/:id", c.Show)
	h.Get("/:id/profile", c.Profile)
	h.Get("/:id/history", c.History)
	h.Get("/:id/export/:format", c.Export)
	h.Delete("/:id", c.Delete)
}

func (c *datasetController) Upload(ctx *fiber.Ctx) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing multipart field 'file'")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	res, err := c.service.Upload(ctx.UserContext(), fileHeader.Filename, file)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success upload dataset", res))
}

func (c *datasetController) Show(ctx *fiber.Ctx) error {
	res, err := c.service.Show(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show dataset", res))
}

func (c *datasetController) Profile(ctx *fiber.Ctx) error {
	res, err := c.service.Profile(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success profile dataset", res))
}

func (c *datasetController) History(ctx *fiber.Ctx) error {
	res, err := c.service.History(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get history", res))
}

func (c *datasetController) Export(ctx *fiber.Ctx) error {
	file, err := c.service.Export(ctx.UserContext(), ctx.Params("id"), ctx.Params("format"))
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, file.ContentType)
	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Filename))
	return ctx.Send(file.Body)
}

func (c *datasetController) Delete(ctx *fiber.Ctx) error {
	if err := c.service.Delete(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete dataset", nil))
}
