package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	frameHandler := handlers.NewFrameHandler(s.deps.Slot)
	identitiesHandler := handlers.NewIdentitiesHandler(s.deps.Service, s.deps.Slot, s.jobManager, s.log)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Service, s.deps.Slot, s.deps.Events, s.jobManager, s.log)
	jobsHandler := handlers.NewJobsHandler(s.jobManager)

	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Camera frames
		r.Put("/frame", frameHandler.Put)

		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities", identitiesHandler.Enroll)
		r.Get("/identities/{name}/snapshot", identitiesHandler.Snapshot)

		// Attendance
		r.Get("/attendance", attendanceHandler.Events)
		r.Post("/attendance/{direction}", attendanceHandler.Verify)

		// Async jobs
		r.Get("/jobs/{jobId}", jobsHandler.Status)
		r.Get("/jobs/{jobId}/events", jobsHandler.Events)
	})
}
