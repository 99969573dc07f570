package web

import (
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"time"
)

const (
	PageSize    = 15
	maxPageSize = 100
)

func getPageNumber(c *gin.Context) int {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func getPageSize(c *gin.Context) int {
	size, err := strconv.Atoi(c.Query("page_size"))
	if err != nil || size < 1 {
		return PageSize
	}
	return min(size, maxPageSize)
}

// writeError maps domain errors to status codes. Unknown errors are logged and hidden.
func (s *Server) writeError(c *gin.Context, err error) {
	var validation *custom_errors.ValidationError
	var trigger *custom_errors.TriggerFailureError

	switch {
	case errors.As(err, &validation):
		msgs := make([]string, 0, len(validation.Errors))
		for _, e := range validation.Errors {
			msgs = append(msgs, e.Error())
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": msgs})
	case errors.Is(err, custom_errors.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, custom_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &trigger):
		c.JSON(http.StatusBadGateway, gin.H{"error": trigger.Error()})
	default:
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func printBanner(addr string) {
	width := 46
	fmt.Println("##############################################")
	fmt.Printf("# %-*s #\n", width-4, "")
	fmt.Printf("# %-*s #\n", width-4, "Genfire Started")
	fmt.Printf("# %-*s #\n", width-4, fmt.Sprintf("Genfire API running on %s", addr))
	fmt.Printf("# %-*s #\n", width-4, "")
	fmt.Println("##############################################")
}
