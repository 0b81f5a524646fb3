package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	incidents := s.router.Group("/incidents")
	{
		incidents.GET("", s.incidentHandler.ListIncidents)
		incidents.GET("/:id", s.incidentHandler.GetIncident)
		incidents.GET("/:id/events", s.incidentHandler.GetIncidentEvents)
	}

	cameras := s.router.Group("/cameras")
	{
		cameras.GET("", s.cameraHandler.ListCameras)
		cameras.POST("/:name/enable", s.cameraHandler.EnableCamera)
		cameras.POST("/:name/aim", s.cameraHandler.AimCamera)
		cameras.GET("/:name/snapshot", s.cameraHandler.Snapshot)
		cameras.GET("/:name/stream", s.previewHandler.Stream)
	}

	captures := s.router.Group("/captures")
	{
		captures.GET("", s.captureHandler.ListCaptures)
		captures.POST("/force-stop", s.captureHandler.ForceStopAll)
		captures.POST("/:id/stop", s.captureHandler.StopCapture)
	}

	s.router.GET("/clock", s.clockHandler.GetClock)
	s.router.POST("/clock", s.clockHandler.SetClock)

	geo := s.router.Group("/geo")
	{
		geo.GET("", s.geoHandler.GetStatus)
		geo.POST("/control-points", s.geoHandler.SetControlPoints)
		geo.GET("/convert", s.geoHandler.Convert)
		geo.POST("/calibrate", s.geoHandler.Calibrate)
	}

	actors := s.router.Group("/actors")
	{
		actors.GET("", s.actorHandler.ListActors)
		actors.PUT("/:id", s.actorHandler.PutActor)
		actors.DELETE("/:id", s.actorHandler.DeleteActor)
	}

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}
}
