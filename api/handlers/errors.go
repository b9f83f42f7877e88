package handlers

import (
	"errors"
	"net/http"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/api/middleware"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"
)

var kindStatus = map[service.ErrorKind]int{
	service.KindValidation:     http.StatusBadRequest,
	service.KindAuthentication: http.StatusUnauthorized,
	service.KindAuthorization:  http.StatusForbidden,
	service.KindNotFound:       http.StatusNotFound,
	service.KindConflict:       http.StatusConflict,
	service.KindInternal:       http.StatusInternalServerError,
}

// respondError writes a service error. Internal failures are logged with the
// request id and never expose their cause.
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		svcErr = service.NewInternalError("unexpected failure", err)
	}

	status, ok := kindStatus[svcErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := gin.H{
		"success": false,
		"error":   svcErr.Message,
		"code":    svcErr.Kind,
	}
	if len(svcErr.Fields) > 0 {
		body["fields"] = svcErr.Fields
	}

	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.GetRequestID(c),
			"path":       c.FullPath(),
		}).Error("Request failed")
		body["error"] = "internal server error"
	}

	c.JSON(status, body)
}

// bindJSON decodes the request body, writing a validation error on failure.
// The body may already have been read by the rate limiter.
func bindJSON(c *gin.Context, log *logrus.Logger, obj interface{}) bool {
	if err := c.ShouldBindBodyWith(obj, binding.JSON); err != nil {
		mapped := service.ValidationErrorFrom(err, "")
		if !service.IsKind(mapped, service.KindValidation) {
			mapped = service.NewValidationError(service.FieldError{
				Field:      "body",
				Constraint: "json",
				Message:    "request body must be a JSON object",
			})
		}
		respondError(c, log, mapped)
		return false
	}
	return true
}

// operator returns the authenticated operator or writes a 401
func operator(c *gin.Context, log *logrus.Logger) (service.Operator, bool) {
	op, err := middleware.GetOperator(c)
	if err != nil {
		respondError(c, log, service.NewAuthenticationError("operator authentication required"))
		return service.Operator{}, false
	}
	return op, true
}
