package controller

import (
	"data-explorer-be/internal/dto"
	"data-explorer-be/internal/pkg/serverutils"
	"data-explorer-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IQueryController interface {
	RegisterRoutes(r fiber.Router, middleware ...fiber.Handler)
	Query(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
}

type queryController struct {
	service service.IExplorerService
}

func NewQueryController(service service.IExplorerService) IQueryController {
	return &queryController{service: service}
}

func (c *queryController) RegisterRoutes(r fiber.Router, middleware ...fiber.Handler) {
	h := r.Group("/query/v1", middleware...)
	h.Post("", c.Query)
	h.Post("/history", c.History)
}

func (c *queryController) Query(ctx *fiber.Ctx) error {
	var req dto.QueryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Query(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success process query", res))
}

func (c *queryController) History(ctx *fiber.Ctx) error {
	var req dto.HistoryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.History(ctx.UserContext(), req.DataId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get history", res))
}
