// Package server exposes the provisioning trigger and the Canvas helpers the
// course picker needs over HTTP. The caller's identity is taken from the
// X-Canvas-User header set by the fronting login layer.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"mediasite-provisioning/internal/canvas"
	"mediasite-provisioning/internal/logging"
	"mediasite-provisioning/internal/provisioning"
	"mediasite-provisioning/internal/store"
)

const userHeader = "X-Canvas-User"

// Canvas is what the server needs from a per-user Canvas client.
type Canvas interface {
	provisioning.LMS
	Accounts(ctx context.Context) ([]canvas.Account, error)
	SearchCourses(ctx context.Context, accountID int64, term string, page canvas.PageToken) (*canvas.CoursePage, error)
}

// RunFunc provisions one course with the given user's Canvas client.
type RunFunc func(ctx context.Context, lms provisioning.LMS, req provisioning.Request) (*provisioning.Result, error)

type Deps struct {
	Store  store.Store
	OAuth  *canvas.OAuth
	Logger *zap.Logger

	// NewCanvas builds a Canvas client acting with token.
	NewCanvas func(token string) Canvas
	// Run defaults to a provisioning.Provisioner over Host with Options.
	Run     RunFunc
	Host    provisioning.VideoHost
	Options provisioning.Options

	// ProvisionRate is the number of provisioning requests allowed per user per minute.
	ProvisionRate int
	Production    bool
}

type Server struct {
	deps     Deps
	log      *zap.Logger
	validate *validator.Validate
}

func New(deps Deps) *Server {
	s := &Server{deps: deps, log: logging.OrNop(deps.Logger), validate: validator.New()}
	if s.deps.Run == nil {
		s.deps.Run = func(ctx context.Context, lms provisioning.LMS, req provisioning.Request) (*provisioning.Result, error) {
			return provisioning.New(lms, deps.Host, deps.Options, s.log).Run(ctx, req)
		}
	}
	if s.deps.ProvisionRate <= 0 {
		s.deps.ProvisionRate = 20
	}
	return s
}

func (s *Server) Routes() http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        s.deps.Production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !s.deps.Production,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(secureMiddleware.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/oauth/callback", s.handleOAuthCallback)
	r.Get("/accounts", s.handleAccounts)
	r.Get("/courses", s.handleCourses)

	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(s.deps.ProvisionRate, time.Minute,
			httprate.WithKeyFuncs(userOrIPKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeProblem(w, http.StatusTooManyRequests, problem{Category: "rate limit", Message: "too many provisioning requests, try again in a minute"})
			}),
		))
		gr.Post("/provision", s.handleProvision)
	})
	return r
}

func userOrIPKey(r *http.Request) (string, error) {
	if user := strings.TrimSpace(r.Header.Get(userHeader)); user != "" {
		return "user:" + user, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
