package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"notemesh/application/services"
	"notemesh/interfaces/http/rest/handlers"
	"notemesh/interfaces/http/rest/middleware"
	"notemesh/pkg/auth"
	pkgerrors "notemesh/pkg/errors"
	"notemesh/pkg/observability"
)

// LocalUserID is the user every request runs as when authentication is off
const LocalUserID = "local-user"

// Options configures the HTTP surface
type Options struct {
	// Verifier is nil when authentication is disabled
	Verifier       auth.TokenVerifier
	UserLimiter    auth.RateLimiter
	IPLimiter      auth.RateLimiter
	Metrics        *observability.Collector
	MetricsPath    string
	AllowedOrigins []string
	CORSMaxAge     int
	Debug          bool
}

// Router creates and configures the HTTP router
type Router struct {
	canvases *services.CanvasService
	notes    *services.NoteService
	opts     Options
	errs     *pkgerrors.ErrorHandler
	logger   *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	canvases *services.CanvasService,
	notes *services.NoteService,
	opts Options,
	logger *zap.Logger,
) *Router {
	return &Router{
		canvases: canvases,
		notes:    notes,
		opts:     opts,
		errs:     pkgerrors.NewErrorHandler(logger, opts.Debug),
		logger:   logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errs.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.opts.Metrics != nil {
		router.Use(middleware.Metrics(rt.opts.Metrics))
	}

	origins := rt.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           rt.opts.CORSMaxAge,
	}))

	router.Get("/health", rt.healthCheck)
	if rt.opts.Metrics != nil {
		path := rt.opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, rt.opts.Metrics.Handler())
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.errs.HandleStatus(w, r, http.StatusNotFound, "Route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		rt.errs.HandleStatus(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	router.Route("/api/v1", func(r chi.Router) {
		if rt.opts.IPLimiter != nil {
			r.Use(middleware.RateLimitIP(rt.opts.IPLimiter, rt.errs))
		}
		if rt.opts.Verifier != nil {
			r.Use(middleware.Authenticate(rt.opts.Verifier, rt.opts.UserLimiter, rt.errs, rt.logger))
		} else {
			r.Use(middleware.LocalUser(LocalUserID))
		}

		canvasHandler := handlers.NewCanvasHandler(rt.canvases, rt.errs, rt.opts.Metrics, rt.logger)
		nodeHandler := handlers.NewNodeHandler(rt.canvases, rt.errs, rt.logger)
		r.Route("/canvases", func(r chi.Router) {
			r.Get("/", canvasHandler.ListCanvases)
			r.Post("/", canvasHandler.CreateCanvas)
			r.Get("/default", canvasHandler.OpenDefault)

			r.Route("/{canvasID}", func(r chi.Router) {
				r.Get("/", canvasHandler.OpenCanvas)
				r.Delete("/", canvasHandler.DeleteCanvas)
				r.Post("/chat", canvasHandler.Chat)
				r.Put("/selection", canvasHandler.Select)
				r.Post("/undo", canvasHandler.Undo)
				r.Post("/redo", canvasHandler.Redo)
				r.Post("/clear", canvasHandler.Clear)
				r.Post("/cluster", canvasHandler.Cluster)
				r.Post("/changes", nodeHandler.ApplyChanges)

				r.Post("/nodes", nodeHandler.CreateNode)
				r.Patch("/nodes/{nodeID}", nodeHandler.UpdateNode)
				r.Delete("/nodes/{nodeID}", nodeHandler.DeleteNode)
				r.Post("/edges", nodeHandler.CreateEdge)
				r.Delete("/edges/{edgeID}", nodeHandler.DeleteEdge)
			})
		})

		notebookHandler := handlers.NewNotebookHandler(rt.notes, rt.errs, rt.logger)
		r.Route("/notebooks", func(r chi.Router) {
			r.Get("/", notebookHandler.ListNotebooks)
			r.Post("/", notebookHandler.CreateNotebook)
			r.Patch("/{notebookID}", notebookHandler.UpdateNotebook)
			r.Delete("/{notebookID}", notebookHandler.DeleteNotebook)
			r.Put("/{notebookID}/selection", notebookHandler.SelectNotebook)
			r.Get("/{notebookID}/notes", notebookHandler.ListNotes)
			r.Post("/{notebookID}/notes", notebookHandler.CreateNote)
		})
		r.Route("/notes/{noteID}", func(r chi.Router) {
			r.Get("/", notebookHandler.GetNote)
			r.Patch("/", notebookHandler.UpdateNote)
			r.Delete("/", notebookHandler.DeleteNote)
			r.Post("/improve", notebookHandler.ImproveNote)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
