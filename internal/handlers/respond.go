package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/midrand-elite/meg-services/internal/auth"
	"github.com/midrand-elite/meg-services/internal/requests"
	"github.com/midrand-elite/meg-services/internal/validation"
)

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": msg,
	})
}

func validationFail(c *fiber.Ctx, errs validation.FieldErrors) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"success": false,
		"message": "Validation error",
		"errors":  errs,
	})
}

// ErrorHandler renders every unhandled error in the success/message envelope
// and logs server-side failures.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "Internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		}

		if code >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err),
			)
		}

		return fail(c, code, msg)
	}
}

// authFail maps an auth provider failure to a status and its user-facing
// message.
func authFail(c *fiber.Ctx, err error, fallback string) error {
	code := auth.CodeOf(err)
	status := fiber.StatusInternalServerError
	switch code {
	case auth.CodeInvalidEmail, auth.CodeWeakPassword:
		status = fiber.StatusBadRequest
	case auth.CodeUserNotFound, auth.CodeWrongPassword, auth.CodeInvalidToken, auth.CodeSessionRevoked:
		status = fiber.StatusUnauthorized
	case auth.CodeUserDisabled:
		status = fiber.StatusForbidden
	case auth.CodeEmailInUse:
		status = fiber.StatusConflict
	case auth.CodeNetworkFailed:
		status = fiber.StatusServiceUnavailable
	}
	if code == "" {
		return err
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"code":    code,
		"message": auth.MessageFor(err, fallback),
	})
}

// requestFail maps request service errors to HTTP statuses.
func requestFail(c *fiber.Ctx, err error) error {
	var verr *requests.ValidationError
	switch {
	case errors.As(err, &verr):
		return validationFail(c, verr.Fields)
	case errors.Is(err, requests.ErrUnauthenticated):
		return fail(c, fiber.StatusUnauthorized, "Please sign in")
	case errors.Is(err, requests.ErrForbidden):
		return fail(c, fiber.StatusForbidden, "You are not allowed to do that")
	case errors.Is(err, requests.ErrNotFound):
		return fail(c, fiber.StatusNotFound, "Request not found")
	case errors.Is(err, requests.ErrIllegalTransition):
		return fail(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, requests.ErrStatusConflict):
		return fail(c, fiber.StatusConflict, "This request was updated by someone else. Refresh and try again")
	case errors.Is(err, requests.ErrInvalidStatus), errors.Is(err, requests.ErrWorkerRequired):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, requests.ErrUnknownService):
		errs := validation.FieldErrors{}
		errs.Add("service_id", "Please select a service type.")
		return validationFail(c, errs)
	}
	return err
}
