package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/coursemart/internal/middleware"
)

const (
	authRateLimitRPS   = 1
	authRateLimitBurst = 5
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса coursemart.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.Metrics)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	authLimiter := custommiddleware.NewRateLimiter(authRateLimitRPS, authRateLimitBurst)

	r.Route("/api", func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)

		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		r.Route("/courses", func(r chi.Router) {
			r.Get("/", h.ListCourses)
			r.Get("/{id}", h.GetCourse)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				r.Post("/", h.CreateCourse)
				r.Put("/{id}", h.UpdateCourse)
				r.Delete("/{id}", h.DeleteCourse)
			})
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Get("/", h.Me)
			r.Put("/", h.UpdateProfile)
			r.Get("/courses", h.MyCourses)
			r.Get("/events", h.MyEvents)
		})

		r.Route("/purchases", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Post("/", h.CreatePurchase)
			r.Get("/my-purchases", h.MyPurchases)
			r.Get("/{id}", h.GetPurchase)
			r.Post("/{id}/refund", h.RefundPurchase)
		})

		r.Route("/payment-verification", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Get("/pending", h.PendingPurchases)
			r.Put("/{id}/verify", h.VerifyPurchase)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Get("/upcoming", h.UpcomingEvents)
			r.Get("/{id}", h.GetEvent)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				r.Post("/", h.CreateEvent)
				r.Put("/{id}", h.UpdateEvent)
				r.Delete("/{id}", h.DeleteEvent)
			})
		})

		r.Route("/event-registrations", func(r chi.Router) {
			r.With(h.authMiddleware.Optional).Post("/", h.RegisterForEvent)
			r.Get("/my-registrations", h.MyRegistrations)
			r.With(h.authMiddleware.Middleware).Get("/event/{eventId}", h.EventRegistrations)
			r.Delete("/{id}", h.CancelEventRegistration)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/course/{courseId}", h.CourseReviews)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				r.Get("/user/{userId}", h.UserReviews)
				r.Post("/", h.CreateReview)
				r.Put("/{id}", h.UpdateReview)
				r.Delete("/{id}", h.DeleteReview)
				r.Post("/{id}/helpful", h.MarkReviewHelpful)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.respondMessage(w, r, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.respondMessage(w, r, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
