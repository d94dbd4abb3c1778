package middleware

import (
	stderrors "errors"

	"github.com/aisgo/ais-wms-core/errors"
	"github.com/aisgo/ais-wms-core/logger"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// NewErrorHandler returns a Fiber ErrorHandler rendering BizError codes as {code,msg}.
func NewErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return func(c fiber.Ctx, err error) error {
		if err == nil {
			return nil
		}

		var fe *fiber.Error
		if stderrors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"code": fe.Code, "msg": fe.Message})
		}

		status, body := errors.ToHTTPResponse(err)
		if status >= fiber.StatusInternalServerError {
			log.WithContext(c.Context()).Error("request failed",
				zap.Error(err),
				zap.String("kind", errors.Kind(err)),
				zap.String("path", c.Path()),
			)
		}
		return c.Status(status).JSON(body)
	}
}
