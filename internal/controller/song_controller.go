package controller

import (
	"burnt-beats-be/internal/dto"
	"burnt-beats-be/internal/pkg/serverutils"
	"burnt-beats-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ISongController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
	Update(ctx *fiber.Ctx) error
}

type songController struct {
	songService service.ISongService
}

func NewSongController(songService service.ISongService) ISongController {
	return &songController{
		songService: songService,
	}
}

func (c *songController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/song/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("", c.Create)
	h.Get("", c.List)
	h.Get(":id", c.Show)
	h.Put(":id", c.Update)
}

func (c *songController) Create(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromLocals(ctx)
	if err != nil {
		return err
	}

	var req dto.CreateSongRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.songService.Create(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success create song", res))
}

func (c *songController) Show(ctx *fiber.Ctx) error {
	idParam := ctx.Params("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		return serverutils.NewApiError(fiber.StatusBadRequest, "Invalid song id")
	}

	res, err := c.songService.Show(ctx.Context(), id)
	if err != nil {
		return err
	}
	if res == nil {
		return serverutils.NewApiError(fiber.StatusNotFound, "Song not found")
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show song", res))
}

func (c *songController) List(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromLocals(ctx)
	if err != nil {
		return err
	}

	res, err := c.songService.List(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list songs", res))
}

func (c *songController) Update(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromLocals(ctx)
	if err != nil {
		return err
	}

	idParam := ctx.Params("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		return serverutils.NewApiError(fiber.StatusBadRequest, "Invalid song id")
	}

	var req dto.UpdateSongRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	req.Id = id

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.songService.Update(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}
	if res == nil {
		return serverutils.NewApiError(fiber.StatusNotFound, "Song not found")
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update song", res))
}
