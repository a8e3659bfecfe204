package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

var categoryStatus = map[string]int{
	domain.CategoryInvalidRequest:      http.StatusBadRequest,
	domain.CategoryInvalidPost:         http.StatusUnprocessableEntity,
	domain.CategoryRateLimited:         http.StatusTooManyRequests,
	domain.CategoryProviderUnavailable: http.StatusServiceUnavailable,
	domain.CategoryProvider:            http.StatusBadGateway,
	domain.CategoryPersistence:         http.StatusInternalServerError,
	domain.CategoryTimeout:             http.StatusGatewayTimeout,
	domain.CategoryNotFound:            http.StatusNotFound,
	domain.CategoryInternal:            http.StatusInternalServerError,
}

type errorBody struct {
	Status   string `json:"status"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

func (s *Server) fail(c *gin.Context, err error) {
	category := domain.ErrorCategory(err)
	code, ok := categoryStatus[category]
	if !ok {
		code = http.StatusInternalServerError
	}
	entry := s.logger.WithError(err).WithFields(logrus.Fields{
		"path":     c.FullPath(),
		"category": category,
	})
	if code >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}
	c.AbortWithStatusJSON(code, errorBody{Status: "error", Category: category, Message: err.Error()})
}

func badRequest(msg string) error {
	return &domain.InvalidRequestError{Problems: []string{msg}}
}
