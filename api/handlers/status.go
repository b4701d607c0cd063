package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/levandor/ferret/logger"
	"github.com/levandor/ferret/services/index"
	"github.com/levandor/ferret/validation"
)

type FileStatusRequest struct {
	Path string `form:"path" json:"path" validate:"required"`
}

func SetupStatus(router *gin.Engine, logger logger.Logger, service *index.Service, validator *validation.Validator) {
	router.GET("/files/status", handleGetFileStatus(service, logger, validator))

}

func handleGetFileStatus(service *index.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := FileStatusRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			logger.Warn("could not extract expected params from file status request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate file status request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		status, err := service.GetFileStatus(request.Path)
		if err != nil {
			logger.Error("could not get file status", "path", request.Path, "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, status, http.StatusOK, nil)
	}
}
