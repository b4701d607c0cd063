package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/levandor/ferret/api/handlers"
	"github.com/levandor/ferret/logger"
	"github.com/levandor/ferret/services/index"
	"github.com/levandor/ferret/services/search"
	"github.com/levandor/ferret/validation"
)

func setupRoutes(router *gin.Engine, logger logger.Logger, indexService *index.Service, searchService *search.Service, validator *validation.Validator) {
	router.GET("/health", health())

	handlers.SetupIndex(router, logger, indexService, validator)
	handlers.SetupSearch(router, logger, searchService)
	handlers.SetupStatus(router, logger, indexService, validator)
	handlers.SetupExtract(router, logger, searchService, validator)

}

func health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	}
}

func newRouter() *gin.Engine {
	router := gin.Default()
	router.UseRawPath = true
	router.Use(_CORSMiddleware())
	router.Use(gin.Recovery())

	return router
}
