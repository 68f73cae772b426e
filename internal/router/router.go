package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"examdesk-backend/internal/handlers"
	"examdesk-backend/internal/middleware"
	"examdesk-backend/internal/models"
	"examdesk-backend/internal/ws"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	examTypeHandler *handlers.ExamTypeHandler,
	questionHandler *handlers.QuestionHandler,
	structureHandler *handlers.StructureHandler,
	employeeHandler *handlers.EmployeeHandler,
	resultHandler *handlers.ResultHandler,
	wsHub *ws.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})

			// Only admins create operator accounts
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Post("/register", authHandler.Register)
			})
		})

		// ──── Exam Type Routes ────
		r.Route("/exam-types", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", examTypeHandler.List)
			r.Get("/{id}", examTypeHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Post("/", examTypeHandler.Create)
				r.Put("/{id}", examTypeHandler.Update)
				r.Delete("/{id}", examTypeHandler.Delete)
			})
		})

		// ──── Question Routes ────
		r.Route("/questions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", questionHandler.List)
			r.Get("/{id}", questionHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Post("/", questionHandler.Create)
				r.Put("/{id}", questionHandler.Update)
				r.Delete("/{id}", questionHandler.Delete)
			})
		})

		// ──── Structure Routes ────
		r.Route("/structures", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", structureHandler.List)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Post("/", structureHandler.Create)
				r.Put("/{id}", structureHandler.Update)
				r.Delete("/{id}", structureHandler.Delete)
			})
		})

		// ──── Employee Routes ────
		r.Route("/employees", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", employeeHandler.List)
			r.Get("/{id}", employeeHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Post("/", employeeHandler.Create)
				r.Put("/{id}", employeeHandler.Update)
				r.Delete("/{id}", employeeHandler.Delete)
			})
		})

		// ──── Result Routes ────
		r.Route("/results", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", resultHandler.List)
			r.Get("/{id}", resultHandler.Get)
			r.Get("/session/{sessionId}", resultHandler.GetBySession)
		})

		// ──── WebSocket ────
		r.Get("/ws/station", wsHub.HandleStation)
		r.Get("/ws/admin", wsHub.HandleObserver)
	})

	return r
}
