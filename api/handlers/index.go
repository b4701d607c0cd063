package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/levandor/ferret/logger"
	"github.com/levandor/ferret/services/index"
	"github.com/levandor/ferret/validation"
)

type IndexRequest struct {
	Path           string   `json:"path" validate:"required,valid_path"`
	ExcludeFolders []string `json:"exclude_folders"`
}

type IndexResponse struct {
	ID string `json:"request_id"`
}

func SetupIndex(router *gin.Engine, logger logger.Logger, service *index.Service, validator *validation.Validator) {
	router.POST("/index", handleCreateIndex(service, logger, validator))
	router.GET("/index/:request_id", handleGetIndexStatus(service, logger, validator))

}

func handleCreateIndex(service *index.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := IndexRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected body params from index request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate index request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		requestID := uuid.NewString()
		if err := service.Build(request.Path, request.ExcludeFolders, requestID); err != nil {
			if errors.Is(err, index.ErrIndexingInProgress) {
				c.Abort()
				writeResponse(c, nil, http.StatusConflict, []string{err.Error()})
				return
			}
			logger.Error("could not create index", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, IndexResponse{ID: requestID}, http.StatusAccepted, nil)
	}
}

type IndexStatusRequest struct {
	RequestID string `json:"request_id" validate:"valid_request_id"`
}

func handleGetIndexStatus(service *index.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := IndexStatusRequest{RequestID: c.Param("request_id")}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate index status request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		record, err := service.GetStatus(request.RequestID)
		if err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusNotFound, []string{"unknown request id"})
			return
		}

		writeResponse(c, record, http.StatusOK, nil)
	}
}
