package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/sakif/thoughts/internal/auth"
	"github.com/sakif/thoughts/internal/config"
	"github.com/sakif/thoughts/internal/handler"
	"github.com/sakif/thoughts/internal/middleware"
)

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE (all under /api/v2 except / and /metrics):
//
//	POST   /users/create-user              register (rate limited)
//	GET    /users/verify/{token}           email verification redirect
//	POST   /users/auth-user-login          password login (rate limited)
//	POST   /users/auth-user-logout         bearer
//	GET    /users/auth-manage-token        refresh cookie → access token
//	GET    /users/find-current-user        bearer (POST too)
//	GET    /users/get-all                  admin
//	PATCH  /users/ban/{userId}             admin
//	PATCH  /users/remove/{userId}          admin
//	GET    /users/google[/callback]        federated login, when configured
//	GET    /users/google-login/failure
//	GET    /posts/get-all                  public
//	GET    /posts/get-single/{postId}      public
//	POST   /posts/create-post              bearer
//	...                                    see below
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID, so every later log line can carry it
//  2. RealIP, before the rate limiter keys on the client address
//  3. Recoverer turns panics into 500s
//  4. Logger and Metrics observe the final status
//  5. CORS answers preflight requests before routing
func (s *Server) setupRoutes(h *handlers) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Metrics)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   s.config.Origins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.NotFound(handler.HandleNotFound)
	r.Get("/", handler.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	requireAuth := auth.RequireAuth(h.access)

	r.Route(config.APIPrefix, func(r chi.Router) {
		r.Get("/", handler.HandleHealth)

		r.Route("/users", func(r chi.Router) {
			r.With(h.limiter.Limit("register")).Post("/create-user", h.users.HandleRegister)
			r.Get("/verify/{token}", h.users.HandleVerify)
			r.With(h.limiter.Limit("login")).Post("/auth-user-login", h.users.HandleLogin)
			r.Get("/auth-manage-token", h.users.HandleRefresh)

			if h.oauth != nil {
				r.Get("/google", h.oauth.HandleStart)
				r.Get("/google/callback", h.oauth.HandleCallback)
			}
			r.Get("/google-login/failure", handler.HandleLoginFailure)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/auth-user-logout", h.users.HandleLogout)
				r.Get("/find-current-user", h.users.HandleCurrentUser)
				r.Post("/find-current-user", h.users.HandleCurrentUser)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireAdmin)
					r.Get("/get-all", h.users.HandleListUsers)
					r.Patch("/ban/{userId}", h.users.HandleBan)
					r.Patch("/remove/{userId}", h.users.HandleRemove)
				})
			})
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/get-all", h.posts.HandleList)
			r.Get("/get-single/{postId}", h.posts.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/create-post", h.posts.HandleCreate)
				r.Get("/get-posts/{userId}", h.posts.HandleListByUser)
				r.Delete("/delete/{postId}", h.posts.HandleDelete)
				r.Patch("/edit/{postId}", h.posts.HandleEdit)
				r.Patch("/edit/add-like/{postId}", h.posts.HandleToggleLike)

				r.Post("/add-comment/{postId}", h.comments.HandleAdd)
				r.Get("/get-comment/{postId}", h.comments.HandleList)
				r.Delete("/delete-comment/{commentId}", h.comments.HandleDelete)
				r.Delete("/hide-comment/{commentId}", h.comments.HandleHide)

				r.With(auth.RequireAdmin).Post("/reconcile-counters", h.posts.HandleReconcile)
			})
		})
	})
}
