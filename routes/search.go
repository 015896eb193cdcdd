package routes

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"standards-archive/services"
	"standards-archive/utils"
)

const (
	minQueryLength     = 3
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// HandleSearch runs a ranked full-text query over converted documents.
// Only completed documents appear in results.
func HandleSearch(search *services.SearchIndexService) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := strings.TrimSpace(c.Query("q"))
		if len(query) < minQueryLength {
			utils.RespondWithBadRequest(c, "Query must be at least 3 characters", gin.H{"q": query})
			return
		}

		limit := defaultSearchLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				utils.RespondWithBadRequest(c, "Limit must be a positive number", gin.H{"limit": raw})
				return
			}
			limit = parsed
			if limit > maxSearchLimit {
				limit = maxSearchLimit
			}
		}

		results, err := search.Search(c.Request.Context(), query, limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Search failed", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"query":   query,
			"results": results,
			"count":   len(results),
		})
	}
}
