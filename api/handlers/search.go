package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/levandor/ferret/db/searchdb"
	"github.com/levandor/ferret/logger"
	"github.com/levandor/ferret/services/search"
)

type SearchResponse struct {
	Results   []searchdb.Result `json:"results"`
	Total     uint64            `json:"total"`
	MaxScore  float64           `json:"max_score"`
	TimeTaken string            `json:"time_taken"`
}

func SetupSearch(router *gin.Engine, logger logger.Logger, service *search.Service) {
	router.POST("/search", handleSearch(service, logger))

}

func handleSearch(service *search.Service, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := searchdb.Query{}
		if err := c.ShouldBindJSON(&query); err != nil {
			logger.Warn("could not extract query union from search request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		results, err := service.Search(&query)
		if err != nil {
			if errors.Is(err, searchdb.ErrMalformedQuery) {
				c.Abort()
				writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
				return
			}
			logger.Error("search failed", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		searchResponse := SearchResponse{
			Results:   results.Results,
			Total:     results.Total,
			MaxScore:  results.MaxScore,
			TimeTaken: results.SearchTime,
		}

		writeResponse(c, searchResponse, http.StatusOK, nil)
	}
}
