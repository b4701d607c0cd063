package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/levandor/ferret/logger"
	"github.com/levandor/ferret/services/search"
	"github.com/levandor/ferret/validation"
)

type ExtractRequest struct {
	Path string `form:"path" json:"path" validate:"required,valid_path"`
}

type ExtractResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func SetupExtract(router *gin.Engine, logger logger.Logger, service *search.Service, validator *validation.Validator) {
	router.GET("/extract", handleExtract(service, logger, validator))

}

func handleExtract(service *search.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := ExtractRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			logger.Warn("could not extract expected params from extract request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate extract request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		content, err := service.ExtractDeep(request.Path)
		if err != nil {
			logger.Error("deep extraction failed", "path", request.Path, "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, ExtractResponse{Path: request.Path, Content: content}, http.StatusOK, nil)
	}
}
