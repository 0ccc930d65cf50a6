package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "vet-appointments/docs"
	mem "vet-appointments/internal/adapters/storage/memory"
	pg "vet-appointments/internal/adapters/storage/postgres"
	"vet-appointments/internal/domain/appointments"
	"vet-appointments/internal/domain/clinic"
	"vet-appointments/internal/domain/pets"
	"vet-appointments/internal/domain/staff"
	"vet-appointments/internal/middleware"
	"vet-appointments/internal/platform/logger"
	"vet-appointments/internal/platform/respond"
	"vet-appointments/internal/ports/auth"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Store tiene prioridad. Si no viene, Pool => Postgres; sin Pool => in-memory.
	Store clinic.Store
	Pool  *pgxpool.Pool

	Logger     logger.Logger
	Now        func() time.Time
	PetsPolicy staff.PetsPolicy
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	store := opts.Store
	if store == nil {
		if opts.Pool != nil {
			store = pg.NewStore(opts.Pool)
		} else {
			store = mem.NewStore()
		}
	}

	// Services por módulo
	staffSvc := staff.NewService(store, log, opts.PetsPolicy).WithClock(now)
	petsSvc := pets.NewService(store, log).WithClock(now)
	apptSvc := appointments.NewService(store, log).WithClock(now)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recover(log))
	r.Use(middleware.RequestLog(log))

	r.Get("/health", health(opts.Pool))
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthContext(opts.AuthVerifier, staffSvc, log))

		// Rutas por módulo
		staff.RegisterRoutes(r, staffSvc, log)
		pets.RegisterRoutes(r, petsSvc, log)
		appointments.RegisterRoutes(r, apptSvc, log, now)
	})

	return r
}

func health(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				respond.Message(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
