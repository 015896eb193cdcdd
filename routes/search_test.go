package routes

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func searchRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	// The service is never reached by requests that fail validation.
	router.GET("/api/search", HandleSearch(nil))
	return router
}

func TestSearchRejectsShortQuery(t *testing.T) {
	router := searchRouter()

	for _, q := range []string{"", "ab", "  a  "} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/search?q="+url.QueryEscape(q), nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "q=%q", q)
		assert.Contains(t, w.Body.String(), "at least 3 characters")
	}
}

func TestSearchRejectsBadLimit(t *testing.T) {
	router := searchRouter()

	for _, limit := range []string{"abc", "0", "-5"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/search?q=grounding&limit="+limit, nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%q", limit)
	}
}
