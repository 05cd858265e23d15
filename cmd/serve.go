package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/leleuj/authgate/internal/authz"
	"github.com/leleuj/authgate/internal/client"
	"github.com/leleuj/authgate/internal/clients/bearer"
	"github.com/leleuj/authgate/internal/clients/form"
	"github.com/leleuj/authgate/internal/clients/oidcclient"
	"github.com/leleuj/authgate/internal/gate"
	authmiddleware "github.com/leleuj/authgate/internal/middleware"
	"github.com/leleuj/authgate/internal/server"
	"github.com/leleuj/authgate/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authentication gate server",
	Long:  `Starts the HTTP server with the configured authentication clients, the handshake endpoints, and a protected whoami route.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, cleanup, err := buildSessionStore(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		clients, err := buildClients(cmd.Context())
		if err != nil {
			return err
		}
		if len(clients.Names()) == 0 {
			return fmt.Errorf("no authentication clients configured")
		}
		log.Printf("Registered clients: %v", clients.Names())

		defaultClient := cfg.DefaultClient
		if defaultClient == "" {
			defaultClient = clients.Names()[0]
		}

		var gateOpts []gate.Option
		if cfg.UnauthorizedPage != "" || cfg.ForbiddenPage != "" {
			gateOpts = append(gateOpts, gate.WithErrorPages(gate.ErrorPages{
				Unauthorized: cfg.UnauthorizedPage,
				Forbidden:    cfg.ForbiddenPage,
			}))
		}
		g := gate.New(clients, sessions, gateOpts...)

		var secureOpts []authmiddleware.SecureOption
		if cfg.CasbinModelPath != "" {
			enforcer, err := casbin.NewEnforcer(cfg.CasbinModelPath)
			if err != nil {
				return fmt.Errorf("configure casbin enforcer: %w", err)
			}
			policy, err := authz.NewPolicyAuthorizer(enforcer)
			if err != nil {
				return err
			}
			secureOpts = append(secureOpts, authmiddleware.WithAuthorizers(policy))
			log.Printf("Casbin policy authorizer enabled")
		}

		routerOpts := server.RouterOptions{
			Gate:          g,
			Clients:       clients,
			Sessions:      sessions,
			DefaultClient: defaultClient,
			PostLoginURL:  cfg.PostLoginURL,
			PostLogoutURL: cfg.PostLogoutURL,
			SessionTTL:    cfg.SessionTTL,
			SecureCookies: cfg.SecureCookies,
			ExtraRoutes: func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(authmiddleware.Secure(g, gate.RouteConfig{ClientName: defaultClient}, secureOpts...))
					r.Get("/me", handleWhoAmI)
				})
			},
		}

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      server.NewH2CHandler(routerOpts),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s", cfg.ServerAddr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Printf("Received signal %v, shutting down gracefully", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			log.Printf("Server stopped")
			return nil
		}
	},
}

// buildSessionStore selects the configured backend: in-memory by default,
// bun-backed when a DSN is set.
func buildSessionStore(ctx context.Context) (store.SessionStore, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Printf("Using in-memory session store")
		return store.NewMemoryStore(cfg.SessionTTL), func() {}, nil
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	bunStore := store.NewBunStore(db)
	if err := bunStore.CreateTables(ctx); err != nil {
		store.Close(db)
		return nil, nil, fmt.Errorf("failed to create session tables: %w", err)
	}
	log.Printf("Using %s session store", store.DetectDatabaseType(cfg.DatabaseURL))
	return bunStore, func() { store.Close(db) }, nil
}

// buildClients registers every client the configuration enables.
func buildClients(ctx context.Context) (*client.Registry, error) {
	registry := client.NewRegistry()

	if cfg.Bearer.Enabled() {
		bearerCfg := bearer.Config{
			Audience:   cfg.Bearer.Audience,
			RolesClaim: cfg.Bearer.RolesClaim,
		}
		if cfg.Bearer.SigningKey != "" {
			registry.Register(bearer.New("bearer", []byte(cfg.Bearer.SigningKey), bearerCfg))
		} else {
			bearerCfg.Issuer = cfg.Bearer.Issuer
			remote, err := bearer.NewRemote("bearer", bearerCfg)
			if err != nil {
				return nil, fmt.Errorf("configure bearer client: %w", err)
			}
			registry.Register(remote)
		}
	}

	if cfg.OIDC != nil {
		oidc, err := oidcclient.New(ctx, "oidc", oidcclient.Config{
			Issuer:       cfg.OIDC.Issuer,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURI:  cfg.OIDC.RedirectURI,
			Scopes:       cfg.OIDC.Scopes,
			RolesClaim:   cfg.OIDC.RolesClaim,
		})
		if err != nil {
			return nil, fmt.Errorf("configure oidc client: %w", err)
		}
		registry.Register(oidc)
	}

	if cfg.Form.Enabled() {
		accounts := make(map[string]form.StaticAccount, len(cfg.Form.Users))
		for name, hash := range cfg.Form.Users {
			accounts[name] = form.StaticAccount{PasswordHash: hash}
		}
		verifier := form.NewStaticVerifier(accounts)
		registry.Register(form.New("form", cfg.Form.LoginURL, verifier))
	}

	return registry, nil
}

// handleWhoAmI returns the authenticated profile as JSON.
func handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	p, ok := gate.ProfileFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":         p.ID,
		"attributes": p.Attributes,
		"roles":      p.Roles,
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
