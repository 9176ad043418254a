package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/snowstudies/csas-stations/services/series"
	"github.com/snowstudies/csas-stations/services/stations"
)

const naiveLayout = "2006-01-02T15:04:05"

// parseWallClock accepts RFC3339 or a bare local timestamp and keeps only the
// wall-clock reading, the way station rows are stored.
func parseWallClock(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return stations.Naive(t), nil
	}
	return time.Parse(naiveLayout, s)
}

// handleV1Series returns the merged table for one or more station fields
// GET /api/v1/series?line=SASP:temp&line=PTSP:temp&start=...&end=...&interval=1 Hour&days=7
func (s *Server) handleV1Series(c *gin.Context) {
	lines := c.QueryArray("line")
	if len(lines) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one line=STATION:field is required"})
		return
	}
	reqs := make([]series.Request, 0, len(lines))
	for _, l := range lines {
		r, err := series.ParseRequest(l)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		reqs = append(reqs, r)
	}

	end := stations.Naive(s.now())
	if endStr := c.Query("end"); endStr != "" {
		t, err := parseWallClock(endStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end timestamp"})
			return
		}
		end = t
	}

	days := s.cfg.DefaultDays
	if daysStr := c.Query("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
			return
		}
		days = parsed
	}
	start := end.AddDate(0, 0, -days)
	if startStr := c.Query("start"); startStr != "" {
		t, err := parseWallClock(startStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start timestamp"})
			return
		}
		start = t
	}
	if start.After(end) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start is after end"})
		return
	}

	interval := c.DefaultQuery("interval", s.cfg.DefaultInterval)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	tbl, err := s.fetcher.Fetch(ctx, reqs, start, end, interval)
	switch {
	case errors.Is(err, stations.ErrUnknownStation):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, series.ErrUnknownField), errors.Is(err, series.ErrUnknownInterval):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.log.Error("series fetch failed", "lines", lines, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": tbl,
		"meta": gin.H{
			"start":    start.Format(naiveLayout),
			"end":      end.Format(naiveLayout),
			"interval": interval,
			"count":    len(tbl.Times),
		},
	})
}
