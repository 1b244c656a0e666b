package controller

import (
	"bytes"
	"context"
	"errors"
	"io"

	"docassist-be/internal/dto"
	"docassist-be/internal/pkg/logger"
	"docassist-be/internal/pkg/serverutils"
	"docassist-be/internal/service"
	internalWS "docassist-be/internal/websocket"
	"docassist-be/pkg/chat/collaborator"
	"docassist-be/pkg/chat/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	SetDraft(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	Upload(ctx *fiber.Ctx) error
	AcceptSuggestion(ctx *fiber.Ctx) error
	Reset(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	Stream(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type sessionController struct {
	service service.ISessionService
	hub     *internalWS.Hub
	auth    fiber.Handler
	logger  logger.ILogger
}

// NewSessionController builds the session routes. auth may be nil to leave them open.
func NewSessionController(service service.ISessionService, hub *internalWS.Hub, auth fiber.Handler, log logger.ILogger) ISessionController {
	return &sessionController{
		service: service,
		hub:     hub,
		auth:    auth,
		logger:  log,
	}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	r.Get("/healthz", c.Health)

	h := r.Group("/session/v1")
	if c.auth != nil {
		h.Use(c.auth)
	}
	h.Post("", c.Create)
	h.Get(":id", c.Show)
	h.Delete(":id", c.Delete)
	h.Put(":id/draft", c.SetDraft)
	h.Post(":id/messages", c.SendMessage)
	h.Post(":id/upload", c.Upload)
	h.Post(":id/suggestions", c.AcceptSuggestion)
	h.Post(":id/reset", c.Reset)
	h.Get(":id/ws", c.Stream)
}

func (c *sessionController) Create(ctx *fiber.Ctx) error {
	res, err := c.service.Create(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.StatusResponse(fiber.StatusCreated, "Success create session", res))
}

func (c *sessionController) Show(ctx *fiber.Ctx) error {
	res, err := c.service.Get(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return sessionError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}

func (c *sessionController) SetDraft(ctx *fiber.Ctx) error {
	var req dto.SetDraftRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SetDraft(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return sessionError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update draft", res))
}

func (c *sessionController) SendMessage(ctx *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SendMessage(ctx.UserContext(), ctx.Params("id"), &req, ctx.QueryBool("wait"))
	if err != nil {
		return sessionError(err)
	}
	return accepted(ctx, "Message sent", res)
}

func (c *sessionController) Upload(ctx *fiber.Ctx) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Multipart field 'file' is required")
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	// the upload outlives the request, whose buffers fiber reuses
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	file := collaborator.File{
		Name:        fh.Filename,
		Size:        int64(len(data)),
		ContentType: fh.Header.Get("Content-Type"),
		Body:        bytes.NewReader(data),
	}

	res, err := c.service.Upload(ctx.UserContext(), ctx.Params("id"), file, ctx.QueryBool("wait"))
	if err != nil {
		return sessionError(err)
	}
	return accepted(ctx, "Upload started", res)
}

func (c *sessionController) AcceptSuggestion(ctx *fiber.Ctx) error {
	var req dto.AcceptSuggestionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.AcceptSuggestion(ctx.UserContext(), ctx.Params("id"), &req, ctx.QueryBool("wait"))
	if err != nil {
		return sessionError(err)
	}
	return accepted(ctx, "Suggestion accepted", res)
}

func (c *sessionController) Reset(ctx *fiber.Ctx) error {
	res, err := c.service.Reset(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return sessionError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success reset session", res))
}

func (c *sessionController) Delete(ctx *fiber.Ctx) error {
	if err := c.service.Delete(ctx.UserContext(), ctx.Params("id")); err != nil {
		return sessionError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete session", nil))
}

func (c *sessionController) Stream(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	sessionID := ctx.Params("id")
	if _, err := c.service.Get(ctx.UserContext(), sessionID); err != nil {
		return sessionError(err)
	}

	// the snapshot is read after the connection joins the hub
	snapshot := func() ([]byte, error) {
		return c.service.SnapshotFrame(context.Background(), sessionID)
	}

	return websocket.New(func(conn *websocket.Conn) {
		c.logger.Info("SessionController", "Starting WebSocket stream", map[string]interface{}{"session_id": sessionID})
		internalWS.ServeWs(c.hub, conn, sessionID, snapshot)
		c.logger.Info("SessionController", "WebSocket stream ended", map[string]interface{}{"session_id": sessionID})
	})(ctx)
}

func (c *sessionController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("OK", fiber.Map{
		"status":   "ok",
		"sessions": c.service.Count(),
	}))
}

func accepted(ctx *fiber.Ctx, msg string, res *dto.IntentResponse) error {
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.StatusResponse(fiber.StatusAccepted, msg, res))
}

// sessionError maps service errors onto HTTP statuses
func sessionError(err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrBlankInput):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrExchangeInFlight), errors.Is(err, session.ErrBusy):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
