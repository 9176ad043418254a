package http

// registerV1Routes sets up the v1 API: station metadata, freshness and series.
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware()) // Add X-API-Version: v1 header
	if s.cfg.BearerToken != "" {
		v1.Use(bearerAuthMiddleware(s.cfg.BearerToken))
	}

	stations := v1.Group("/stations")
	{
		stations.GET("", s.handleV1ListStations)
		stations.GET("/:code", s.handleV1GetStation)
		stations.GET("/:code/latest", s.handleV1StationLatest)
	}

	v1.GET("/series", s.handleV1Series)
}
