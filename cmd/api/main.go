package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staffgate.org/internal/auth"
	"staffgate.org/internal/httpapi"
	"staffgate.org/internal/obs"
	"staffgate.org/internal/registry"
	"staffgate.org/internal/store/pg"
	"staffgate.org/internal/stream"
	"staffgate.org/internal/workflow"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	addr := os.Getenv("STAFFGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	var (
		users   auth.UserStore
		refresh auth.RefreshTokenStore
		revoked auth.RevokedTokenStore
		reg     registry.Service
		probe   httpapi.ReadyProbe
	)

	if dsn := os.Getenv("STAFFGATE_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		users = store.Users()
		refresh = store.RefreshTokens()
		revoked = store.RevokedTokens()
		reg = store.Registry()
		probe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		// No database configured: run on seeded in-memory stores.
		log.Println("STAFFGATE_PG_DSN not set, using in-memory stores with demo data")
		memUsers, memRegistry, err := seedDemoData()
		if err != nil {
			log.Fatalf("seed demo data: %v", err)
		}
		users = memUsers
		refresh = auth.NewMemoryRefreshTokenStore()
		revoked = auth.NewMemoryRevokedTokenStore()
		reg = memRegistry
	}

	sessions, err := auth.NewService(users, refresh, revoked)
	if err != nil {
		log.Fatalf("session manager: %v", err)
	}

	events := stream.New()
	flows, err := workflow.New(reg, users, events)
	if err != nil {
		log.Fatalf("workflow: %v", err)
	}

	api := httpapi.New(probe, version, sessions, flows, events)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting staffgate-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

// seedDemoData loads the same demo accounts and projects the SQL seeds
// install, for database-less development runs.
func seedDemoData() (*auth.MemoryUserStore, *registry.InMemory, error) {
	hash, err := auth.HashPassword("password")
	if err != nil {
		return nil, nil, err
	}

	users := auth.NewMemoryUserStore()
	users.Put(&auth.User{
		ID: "u-admin", Username: "admin", DisplayName: "Admin User",
		Email: "admin@techcorp.com", Role: auth.RoleAdmin,
		PasswordHash: hash, Active: true, CreatedAt: time.Now().UTC(),
	})
	users.Put(&auth.User{
		ID: "u-john", Username: "john_doe", DisplayName: "John Doe",
		Email: "john@techcorp.com", Role: auth.RoleStaff,
		PasswordHash: hash, Active: true, CreatedAt: time.Now().UTC(),
	})
	users.Put(&auth.User{
		ID: "u-jane", Username: "jane_smith", DisplayName: "Jane Smith",
		Email: "jane@techcorp.com", Role: auth.RoleStaff,
		PasswordHash: hash, Active: true, CreatedAt: time.Now().UTC(),
	})

	reg := registry.NewInMemory(users)
	techCorp := reg.AddOrganization(registry.Organization{
		Name:        "Tech Corp",
		Description: "Technology company focused on web solutions",
	})
	reg.AddOrganization(registry.Organization{
		Name:        "StartupXYZ",
		Description: "Innovative startup creating mobile solutions",
	})

	if _, err := reg.AddProject(registry.Project{
		OrganizationID: techCorp.ID,
		Name:           "Website Redesign",
		Description:    "Overhaul company website with modern design",
		CreatedByID:    "u-admin",
		Active:         true,
	}, "project123"); err != nil {
		return nil, nil, err
	}
	if _, err := reg.AddProject(registry.Project{
		OrganizationID: techCorp.ID,
		Name:           "Mobile App Development",
		Description:    "Develop iOS & Android apps",
		CreatedByID:    "u-admin",
		Active:         true,
	}, "mobile456"); err != nil {
		return nil, nil, err
	}

	return users, reg, nil
}
