package controller

import (
	"burnt-beats-be/internal/dto"
	"burnt-beats-be/internal/pkg/serverutils"
	"burnt-beats-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IGenerationController interface {
	RegisterRoutes(r fiber.Router)
	Submit(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
}

type generationController struct {
	generationService service.IGenerationService
}

func NewGenerationController(generationService service.IGenerationService) IGenerationController {
	return &generationController{
		generationService: generationService,
	}
}

func (c *generationController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/generation/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("", c.Submit)
	h.Get("", c.History)
	h.Get(":id", c.Status)
	h.Post(":id/cancel", c.Cancel)
}

func (c *generationController) Submit(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromLocals(ctx)
	if err != nil {
		return err
	}

	var req dto.SubmitGenerationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.generationService.Submit(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}
	if res == nil {
		return serverutils.NewApiError(fiber.StatusNotFound, "Song not found")
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Generation job accepted", res))
}

// Status is the polling read. It must answer for any existing job no matter
// its state, so a client that missed every push still converges.
func (c *generationController) Status(ctx *fiber.Ctx) error {
	idParam := ctx.Params("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		return serverutils.NewApiError(fiber.StatusBadRequest, "Invalid job id")
	}

	res, err := c.generationService.Status(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get job status", res))
}

func (c *generationController) Cancel(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromLocals(ctx)
	if err != nil {
		return err
	}

	idParam := ctx.Params("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		return serverutils.NewApiError(fiber.StatusBadRequest, "Invalid job id")
	}

	if err := c.generationService.Cancel(ctx.Context(), userId, id); err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse[any]("Cancellation requested", nil))
}

func (c *generationController) History(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromLocals(ctx)
	if err != nil {
		return err
	}

	limit := ctx.QueryInt("limit", 20)
	offset := ctx.QueryInt("offset", 0)

	res, err := c.generationService.History(ctx.Context(), userId, limit, offset)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list jobs", res))
}
