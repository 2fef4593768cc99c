package handlers

import (
	"fmt"
	"net/url"
	"strconv"

	errprocess "chat_presence_service/pkg/err"
	"chat_presence_service/pkg/logger"
	"chat_presence_service/pkg/validation"

	"chat_presence_service/internal/chat/domain"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorResponse body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// ConnectCheck check api connect start
// @Summary Check chat service status
// @Description Returns a simple confirmation message
// @Tags Shared
// @Success 200 {string} string "chat service start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat service start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Description Enable or disable debug logging for a service
// @Tags Shared
// @Param service query string true "Service name"
// @Param status query bool true "Debug status"
// @Success 200 {string} string "Service debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	// prase payload
	query, err := url.ParseQuery(string(c.Context().QueryArgs().QueryString()))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	service := query.Get("service")
	statusStr := query.Get("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	switch service {
	default:
		logger.Log.SetDebugMode(status)
	}
	return c.SendString(fmt.Sprintf("service[%s]: debug mode is : %t", service, logger.Log.DebugMode()))
}

// respondError map the error kind to a status
func respondError(c *fiber.Ctx, err error) error {
	kind := errprocess.KindOf(err)
	if kind == errprocess.Internal {
		logger.Log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(errprocess.HTTPStatus(kind)).JSON(ErrorResponse{Error: err.Error()})
}

// parseBody decode and validate the json body into dst
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return errprocess.Wrap(errprocess.InvalidArgument, "invalid request body", err)
	}
	return validation.ValidateStruct(dst)
}

// pageOf page and size query parameters
func pageOf(c *fiber.Ctx) domain.Page {
	return domain.Page{Page: c.QueryInt("page", 0), Size: c.QueryInt("size", 20)}.Normalize()
}
