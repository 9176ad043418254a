package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/snowstudies/csas-stations/services/stations"
)

type fieldView struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type arrayView struct {
	ID              int    `json:"id"`
	Label           string `json:"label"`
	IntervalMinutes int    `json:"interval_minutes"`
}

type stationView struct {
	Code   string      `json:"code"`
	Table  string      `json:"table"`
	Albedo bool        `json:"albedo"`
	Arrays []arrayView `json:"arrays"`
	Fields []fieldView `json:"fields,omitempty"`
}

func newStationView(st *stations.Station, withFields bool) stationView {
	v := stationView{Code: st.Code, Table: st.Table().Name, Albedo: st.Albedo != nil}
	for _, a := range st.Arrays() {
		v.Arrays = append(v.Arrays, arrayView{ID: a.ID, Label: a.Label, IntervalMinutes: a.IntervalMinutes})
	}
	if withFields {
		for _, f := range st.Fields() {
			v.Fields = append(v.Fields, fieldView{Name: f.Name, Type: string(f.Type)})
		}
		if st.Albedo != nil {
			v.Fields = append(v.Fields, fieldView{Name: stations.AlbedoField, Type: string(stations.Float)})
		}
	}
	return v
}

// handleV1ListStations returns every registered station
// GET /api/v1/stations
func (s *Server) handleV1ListStations(c *gin.Context) {
	list := s.registry.Stations()
	out := make([]stationView, 0, len(list))
	for _, st := range list {
		out = append(out, newStationView(st, false))
	}

	c.JSON(http.StatusOK, gin.H{
		"data": out,
		"meta": gin.H{
			"count": len(out),
		},
	})
}

// handleV1GetStation returns one station with its column header
// GET /api/v1/stations/:code
func (s *Server) handleV1GetStation(c *gin.Context) {
	st, ok := s.lookupStation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newStationView(st, true)})
}

type latestView struct {
	ArrayID  int        `json:"arrayid"`
	Label    string     `json:"label"`
	Latest   *time.Time `json:"latest"`
	LagHours *float64   `json:"lag_hours"`
	Overdue  bool       `json:"overdue"`
}

// handleV1StationLatest reports the newest stored timestamp of every data
// array and how far it trails the current logger wall-clock time.
// GET /api/v1/stations/:code/latest
func (s *Server) handleV1StationLatest(c *gin.Context) {
	st, ok := s.lookupStation(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	now := stations.Naive(s.now())
	out := make([]latestView, 0, len(st.Arrays()))
	for _, arr := range st.Arrays() {
		latest, found, err := s.store.LatestTime(ctx, st.Table(), arr.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		v := latestView{ArrayID: arr.ID, Label: arr.Label, Overdue: true}
		if found {
			latest = stations.Naive(latest)
			lag := now.Sub(latest)
			hours := lag.Hours()
			v.Latest = &latest
			v.LagHours = &hours
			v.Overdue = lag > arr.Interval()
		}
		out = append(out, v)
	}

	c.JSON(http.StatusOK, gin.H{
		"data": out,
		"meta": gin.H{
			"station":      st.Code,
			"generated_at": now.Format("2006-01-02T15:04:05"),
		},
	})
}

func (s *Server) lookupStation(c *gin.Context) (*stations.Station, bool) {
	code := c.Param("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "station code is required"})
		return nil, false
	}
	st, err := s.registry.Station(code)
	if errors.Is(err, stations.ErrUnknownStation) {
		c.JSON(http.StatusNotFound, gin.H{"error": "station not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return st, true
}
