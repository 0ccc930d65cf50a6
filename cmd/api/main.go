package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"vet-appointments/internal/adapters/auth/jwtauth"
	"vet-appointments/internal/adapters/storage/memory"
	pg "vet-appointments/internal/adapters/storage/postgres"
	"vet-appointments/internal/config"
	"vet-appointments/internal/domain/appointments"
	"vet-appointments/internal/domain/clinic"
	"vet-appointments/internal/domain/pets"
	"vet-appointments/internal/domain/staff"
	"vet-appointments/internal/platform/logger"
	"vet-appointments/internal/ports/auth"
	"vet-appointments/internal/router"
)

// @title Vet Appointments API
// @version 1.0
// @description Turnos, mascotas y roles de una clínica veterinaria.
// @BasePath /
func main() {
	rootCmd := &cobra.Command{
		Use:           "vet-appointments",
		Short:         "API de turnos de la clínica veterinaria",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Crea el esquema, los roles y el administrador inicial",
		RunE: func(cmd *cobra.Command, args []string) error {
			demo, _ := cmd.Flags().GetBool("demo")
			return runSeed(cmd.Context(), demo)
		},
	}
	cmd.Flags().Bool("demo", false, "Agrega veterinarios, clientes, mascotas y turnos de ejemplo")
	return cmd
}

// tokenCmd emite un JWT para probar AUTH_MODE=jwt sin proveedor externo.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Firma un token de acceso con JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, _ := cmd.Flags().GetString("sub")
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := jwtauth.NewVerifier(cfg.JWTSecret, cfg.AppName).Sign(auth.Claims{UserID: sub, Email: email}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("sub", "", "Subject (id del proveedor o id interno)")
	cmd.Flags().String("email", "", "Email para el alta en el primer ingreso")
	cmd.Flags().Duration("ttl", time.Hour, "Vigencia del token")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func setup() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: logger.ParseFormat(cfg.LogFormat),
		App:    cfg.AppName,
	})
	return cfg, log, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pg.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func runServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	policy, err := staff.ParsePetsPolicy(cfg.ClientPetsPolicy)
	if err != nil {
		return err
	}

	opts := router.Options{
		Logger:     log,
		Now:        cfg.Clock(),
		PetsPolicy: policy,
	}

	// Database (opcional)
	if cfg.UsesMemoryStore() {
		log.Warn("DATABASE_URL not set, using in-memory store", nil)
	} else {
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		opts.Pool = pool
		log.Info("connected to database", nil)
	}

	if cfg.AuthMode == config.AuthModeJWT {
		opts.AuthVerifier = jwtauth.NewVerifier(cfg.JWTSecret, cfg.AppName)
	} else {
		log.Warn("auth mode dev: identity taken from X-Debug-User-ID", nil)
	}

	if opts.Pool != nil {
		opts.Store = pg.NewStore(opts.Pool)
	} else {
		opts.Store = memory.NewStore()
	}
	if cfg.BootstrapAdminEmail != "" {
		// en memoria no hay seed previo: el admin se garantiza al arrancar
		if err := bootstrap(ctx, opts.Store, cfg, log, policy); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.NewRouter(opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", map[string]any{"addr": srv.Addr, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-quit:
	}

	log.Info("shutting down server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("server stopped", nil)
	return nil
}

func runSeed(ctx context.Context, demo bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if cfg.UsesMemoryStore() {
		return errors.New("seed needs DATABASE_URL")
	}
	if cfg.BootstrapAdminEmail == "" {
		return errors.New("seed needs BOOTSTRAP_ADMIN_EMAIL")
	}
	policy, err := staff.ParsePetsPolicy(cfg.ClientPetsPolicy)
	if err != nil {
		return err
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	store := pg.NewStore(pool)
	staffSvc := staff.NewService(store, log, policy).WithClock(cfg.Clock())

	admin, _, err := staffSvc.BootstrapAdministrator(ctx, cfg.BootstrapAdminEmail)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if !demo {
		return nil
	}
	return seedDemo(ctx, store, staffSvc, log, cfg.Clock(), clinic.RequesterOf(admin))
}

func bootstrap(ctx context.Context, store clinic.Store, cfg *config.Config, log logger.Logger, policy staff.PetsPolicy) error {
	_, _, err := staff.NewService(store, log, policy).
		WithClock(cfg.Clock()).
		BootstrapAdministrator(ctx, cfg.BootstrapAdminEmail)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	return nil
}

// seedDemo carga datos de ejemplo. Si el primer veterinario ya existe no hace nada.
func seedDemo(ctx context.Context, store clinic.Store, staffSvc *staff.Service, log logger.Logger, now func() time.Time, admin clinic.Requester) error {
	users, err := staffSvc.ListUsers(ctx, admin)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Email == "dra.gomez@clinic.test" {
			log.Info("demo data already loaded", nil)
			return nil
		}
	}

	newUser := func(email, name, role string) (clinic.User, error) {
		return staffSvc.CreateUser(ctx, admin, staff.NewUserInput{
			ProfileInput: staff.ProfileInput{Email: email, Name: name, Phone: "555-0100", Address: "Av. Siempreviva 742"},
			Role:         role,
		})
	}

	vet1, err := newUser("dra.gomez@clinic.test", "Dra. Gómez", string(clinic.RoleVeterinarian))
	if err != nil {
		return err
	}
	vet2, err := newUser("dr.perez@clinic.test", "Dr. Pérez", string(clinic.RoleVeterinarian))
	if err != nil {
		return err
	}
	ana, err := newUser("ana@mail.test", "Ana", string(clinic.RoleClient))
	if err != nil {
		return err
	}

	petsSvc := pets.NewService(store, log).WithClock(now)
	apptSvc := appointments.NewService(store, log).WithClock(now)

	today := now()
	milo, err := petsSvc.Create(ctx, admin, pets.Input{
		ClientID: ana.ID, Name: "Milo", Species: "Perro", Breed: "Mestizo",
		BirthDate: today.AddDate(-3, 0, 0),
	})
	if err != nil {
		return err
	}
	luna, err := petsSvc.Create(ctx, admin, pets.Input{
		ClientID: ana.ID, Name: "Luna", Species: "Gato", Breed: "Siamés",
		BirthDate: today.AddDate(-1, -6, 0),
	})
	if err != nil {
		return err
	}

	base := time.Date(today.Year(), today.Month(), today.Day(), 9, 0, 0, 0, today.Location()).AddDate(0, 0, 1)
	for _, in := range []appointments.Input{
		{DateTime: base, PetID: milo.ID, VeterinarianID: vet1.ID},
		{DateTime: base.Add(time.Hour), PetID: luna.ID, VeterinarianID: vet1.ID},
		{DateTime: base, PetID: luna.ID, VeterinarianID: vet2.ID},
	} {
		if _, err := apptSvc.Create(ctx, admin, in); err != nil {
			return err
		}
	}

	log.Info("demo data loaded", map[string]any{"veterinarians": 2, "clients": 1, "pets": 2, "appointments": 3})
	return nil
}
