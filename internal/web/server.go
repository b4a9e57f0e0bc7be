package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/cors"

	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/imagestore"
	"github.com/vbonduro/pillpal/internal/intake"
	"github.com/vbonduro/pillpal/internal/prompts"
	"github.com/vbonduro/pillpal/internal/session"
)

const sessionCookie = "pillpal_session"

// Options wires a Server. Identifier and Replier back the stateless JSON
// API; the HTML pages go through Sessions.
type Options struct {
	Sessions       *session.Registry
	Images         imagestore.Store
	Decoder        *intake.Decoder
	Identifier     session.Identifier
	Replier        session.Replier
	Prompts        *prompts.Set
	Templates      embed.FS
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Server struct {
	sessions   *session.Registry
	images     imagestore.Store
	decoder    *intake.Decoder
	identifier session.Identifier
	replier    session.Replier
	prompts    *prompts.Set
	templates  embed.FS
	origins    []string
	mux        *http.ServeMux
	tmplFuncs  template.FuncMap
	logger     *slog.Logger
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := opts.Prompts
	if p == nil {
		p = prompts.Default()
	}
	decoder := opts.Decoder
	if decoder == nil {
		decoder = intake.NewDecoder(intake.DefaultMaxBytes, 0)
	}
	s := &Server{
		sessions:   opts.Sessions,
		images:     opts.Images,
		decoder:    decoder,
		identifier: opts.Identifier,
		replier:    opts.Replier,
		prompts:    p,
		templates:  opts.Templates,
		origins:    opts.AllowedOrigins,
		mux:        http.NewServeMux(),
		logger:     logger,
		tmplFuncs: template.FuncMap{
			"join":    strings.Join,
			"isModel": func(r domain.Role) bool { return r == domain.RoleModel },
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /image", s.handleSelectImage)
	s.mux.HandleFunc("GET /image", s.handleGetImage)
	s.mux.HandleFunc("POST /identify", s.handleIdentify)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /reset", s.handleReset)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	api := http.NewServeMux()
	api.HandleFunc("POST /api/identify", s.handleAPIIdentify)
	api.HandleFunc("POST /api/chat", s.handleAPIChat)
	s.mux.Handle("/api/", s.corsHandler(api))
}

// corsHandler opens the JSON API to external front-ends. No configured
// origin means any origin.
func (s *Server) corsHandler(next http.Handler) http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	})(next)
}

// securityHeaders sets the browser security headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline' https://unpkg.com; "+
				"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; "+
				"font-src https://fonts.gstatic.com; "+
				"img-src 'self' data: blob:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach Flush and SetWriteDeadline.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	// Request contexts end at shutdown so open event streams let go.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// session returns the visitor's controller, starting a new session when the
// cookie is missing or no longer known.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Controller {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if c, ok := s.sessions.Get(r.Context(), cookie.Value); ok {
			return c
		}
	}
	c := s.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    c.ID(),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return c
}

// redirectHome sends an htmx client to / with HX-Redirect and anything else
// with a 303.
func redirectHome(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// renderPage executes the "base" template of a full-page template set.
func (s *Server) renderPage(w http.ResponseWriter, data any, files ...string) error {
	return s.render(w, "base", data, files...)
}

// renderPartial executes the template a partial file defines. Partials
// define a template named after the file, without the extension.
func (s *Server) renderPartial(w http.ResponseWriter, file string, data any) error {
	return s.render(w, strings.TrimSuffix(path.Base(file), ".html"), data, file)
}

// render buffers the output so a template error still yields a clean 500.
func (s *Server) render(w http.ResponseWriter, name string, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}
