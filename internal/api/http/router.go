package http

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	auth "github.com/mind-engage/judged/internal/auth/middleware"
	"github.com/mind-engage/judged/internal/config"
	"github.com/mind-engage/judged/internal/judging"
	"github.com/mind-engage/judged/internal/metrics"
	"github.com/mind-engage/judged/internal/rbac"
)

type Deps struct {
	Config  config.Config
	DB      *sql.DB
	Service *judging.Service
	Auth    *auth.AuthService
	Users   *auth.UserStore
	Metrics *metrics.Metrics // optional
}

func NewRouter(d Deps) http.Handler {
	svc := d.Service

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(d.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.Config.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Users))
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", ReadyHandler(d.DB))
	if d.Config.EnableMetrics && d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	acquireLimit := newCallerLimiter(d.Config.AcquirePerMinute, d.Config.AcquireBurst)

	// Protected API (JWT → role and judge id from users table → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))
		pr.Use(auth.AttachRoleFromDB(d.DB, d.Config.Mode == config.ModeOffline))

		pr.With(rbac.Require("score:view")).Get("/rubrics", RubricsHandler())

		pr.With(rbac.Require("application:write")).
			Post("/applications", UpsertApplicationHandler(svc.Applications))
		pr.Route("/applications/{applicationID}", func(ar chi.Router) {
			ar.With(rbac.Require("application:view")).Get("/", GetApplicationHandler(svc.Applications))

			ar.With(rbac.Require("lock:view")).Get("/lock", LockStatusHandler(svc.Locks))
			ar.With(rbac.Require("lock:acquire"), acquireLimit.Middleware).
				Post("/lock", AcquireLockHandler(svc.Locks))
			ar.With(rbac.Require("lock:acquire")).Delete("/lock", ReleaseLockHandler(svc.Locks))
			ar.With(rbac.Require("lock:acquire")).Post("/lock/extend", ExtendLockHandler(svc.Locks))
			ar.With(rbac.Require("lock:acquire")).Post("/lock/heartbeat", HeartbeatHandler(svc.Locks))
			ar.With(rbac.Require("lock:audit")).Get("/lock/history", LockHistoryHandler(svc.Locks))

			ar.With(rbac.Require("score:submit")).Post("/scores", SubmitScoreHandler(svc.Scores))
			ar.With(rbac.Require("score:view")).Get("/scores", ApplicationScoresHandler(svc.Scores))
		})

		pr.With(rbac.Require("lock:cleanup")).Post("/admin/locks/cleanup", CleanupLocksHandler(svc.Locks))

		pr.With(rbac.Require("assignment:create")).Post("/assignments", AssignHandler(svc.Assignments))
		pr.With(rbac.Require("assignment:view")).Get("/assignments", ListAssignmentsHandler(svc.Assignments))
		pr.Route("/assignments/{assignmentID}", func(ar chi.Router) {
			ar.With(rbac.Require("assignment:view")).Get("/", GetAssignmentHandler(svc.Assignments))
			ar.With(rbac.Require("assignment:review")).Post("/start", StartReviewHandler(svc.Assignments))
			ar.With(rbac.Require("assignment:review")).Post("/complete", CompleteReviewHandler(svc.Assignments))
			ar.With(rbac.Require("assignment:review")).Post("/conflict", DeclareConflictHandler(svc.Assignments))
			ar.With(rbac.Require("assignment:reassign")).Post("/reassign", ReassignHandler(svc.Assignments))
		})

		pr.With(rbac.Require("score:submit")).Patch("/scores/{scoreID}", UpdateScoreHandler(svc.Scores))

		pr.With(rbac.Require("judge:write")).Post("/judges", CreateJudgeHandler(svc.Judges))
		pr.With(rbac.Require("judge:list")).Get("/judges", ListJudgesHandler(svc.Judges))
		pr.Route("/judges/{judgeID}", func(jr chi.Router) {
			// Judges read only their own records.
			jr.With(rbac.Require("judge:view"), rbac.RequireOwnerOr("judge:view-all", ownJudge)).
				Get("/", GetJudgeHandler(svc.Judges))
			jr.With(rbac.Require("judge:view"), rbac.RequireOwnerOr("judge:view-all", ownJudge)).
				Get("/history", JudgeHistoryHandler(svc.Judges))
			jr.With(rbac.Require("score:view"), rbac.RequireOwnerOr(permScoresAll, ownJudge)).
				Get("/scores", JudgeScoresHandler(svc.Scores))
			jr.With(rbac.Require("stats:view"), rbac.RequireOwnerOr(permScoresAll, ownJudge)).
				Get("/statistics", JudgeStatisticsHandler(svc.Stats))
			jr.With(rbac.Require("judge:write")).Post("/deactivate", DeactivateJudgeHandler(svc.Judges))
		})

		pr.With(rbac.Require("audit:view")).Get("/audit/{key}", AuditHandler(svc.Audit))

		pr.With(rbac.Require("user:create")).Post("/users", CreateUserHandler(d.Users, svc.Judges))
		pr.With(rbac.Require("user:list")).Get("/users", ListUsersHandler(d.Users))
		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", ChangePasswordHandler(d.Users))
	})

	return r
}
