package middleware

import (
	"errors"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// domainMessages are the caller-facing texts per code. Wrapped storage
// errors stay in the log.
var domainMessages = map[string]string{
	response.CodeNotFound:           "The requested item was not found or is no longer active",
	response.CodeAlreadyLocked:      "This item was just locked by another order",
	response.CodeInvalidState:       "This escrow can no longer be changed by this action",
	response.CodeTransactionFailure: "The operation could not be completed, please try again",
}

// ErrorHandler is the global error handler. Returns the standard error format.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"
	details := map[string]interface{}{}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
		return response.Error(c, message, code, details)
	}

	if status, errCode, ok := DomainStatus(err); ok {
		msg, fixed := domainMessages[errCode]
		if !fixed {
			// invalid_argument text names the offending field only
			msg = err.Error()
		}
		if errCode == response.CodeTransactionFailure {
			log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("path", c.Path()).Msg("transaction failed")
		} else {
			log.Debug().Err(err).Str("trace_id", GetTraceID(c)).Str("code", errCode).Msg("domain error")
		}
		return response.ErrorWithCode(c, msg, status, errCode)
	}

	log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("path", c.Path()).Msg("unhandled error")
	return response.Error(c, message, code, details)
}

// DomainStatus maps escrow sentinel errors to an HTTP status and a
// machine-readable code.
func DomainStatus(err error) (int, string, bool) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return fiber.StatusBadRequest, response.CodeInvalidArgument, true
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, response.CodeNotFound, true
	case errors.Is(err, domain.ErrAlreadyLocked):
		return fiber.StatusConflict, response.CodeAlreadyLocked, true
	case errors.Is(err, domain.ErrInvalidState):
		return fiber.StatusConflict, response.CodeInvalidState, true
	case errors.Is(err, domain.ErrTransactionFailure):
		return fiber.StatusServiceUnavailable, response.CodeTransactionFailure, true
	}
	return 0, "", false
}
