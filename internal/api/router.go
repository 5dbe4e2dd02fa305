package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/sledilnik/internal/cache"
	"github.com/erazemk/sledilnik/internal/imaging"
	"github.com/erazemk/sledilnik/internal/ledger"
	"github.com/erazemk/sledilnik/internal/live"
	"github.com/erazemk/sledilnik/internal/model"
	"github.com/erazemk/sledilnik/internal/tracking"
)

// Config carries what the router needs. Chain and Cache are optional.
type Config struct {
	DB        *sql.DB
	JWTSecret string
	Tracker   *tracking.Tracker
	Hub       *live.Hub
	Chain     *ledger.Chain
	Cache     *cache.StatusCache
	Images    imaging.Processor
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) http.Handler {
	mux := http.NewServeMux()

	if cfg.Hub == nil {
		cfg.Hub = live.NewHub()
	}
	if cfg.Images.MaxBytes == 0 {
		cfg.Images = imaging.Default
	}

	authHandler := &AuthHandler{DB: cfg.DB, JWTSecret: cfg.JWTSecret}
	usersHandler := &UsersHandler{DB: cfg.DB}
	itemsHandler := &ItemsHandler{Tracker: cfg.Tracker, DB: cfg.DB, Images: cfg.Images, Hub: cfg.Hub}
	eventsHandler := &EventsHandler{Tracker: cfg.Tracker, Cache: cfg.Cache}
	dashboardHandler := &DashboardHandler{Tracker: cfg.Tracker}

	authMW := AuthMiddleware(cfg.JWTSecret, cfg.DB)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireRegistrar := RequireRole(registrars()...)

	// Public: login and all reads.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/statuses", Statuses)
	mux.HandleFunc("GET /api/roles", Roles)
	mux.HandleFunc("GET /api/dashboard", dashboardHandler.Get)
	mux.HandleFunc("GET /api/items", itemsHandler.List)
	mux.HandleFunc("GET /api/items/{id}", itemsHandler.Get)
	mux.HandleFunc("GET /api/items/{id}/history", itemsHandler.History)
	mux.HandleFunc("GET /api/items/{id}/latest", itemsHandler.Latest)
	mux.HandleFunc("GET /api/items/{id}/status", eventsHandler.Status)
	mux.HandleFunc("GET /api/items/{id}/image", itemsHandler.GetImage)
	mux.HandleFunc("GET /api/items/{id}/live", itemsHandler.Live)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Items: the tracker checks roles against the lifecycle itself.
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("PUT /api/items/{id}/image", authMW(requireRegistrar(http.HandlerFunc(itemsHandler.UploadImage))))
	mux.Handle("POST /api/items/{id}/events", authMW(http.HandlerFunc(eventsHandler.Create)))
	mux.Handle("POST /api/items/{id}/validate", authMW(http.HandlerFunc(eventsHandler.Validate)))
	mux.Handle("GET /api/items/{id}/transitions", authMW(http.HandlerFunc(eventsHandler.Transitions)))

	// Ledger inspection (admin, chain backend only).
	if cfg.Chain != nil {
		ledgerHandler := &LedgerHandler{Chain: cfg.Chain}
		mux.Handle("GET /api/ledger/verify", authMW(requireAdmin(http.HandlerFunc(ledgerHandler.Verify))))
		mux.Handle("GET /api/ledger/entries/{ref}", authMW(requireAdmin(http.HandlerFunc(ledgerHandler.Entry))))
	}

	return mux
}

// registrars returns the roles allowed to register items.
func registrars() []model.Role {
	var out []model.Role
	for _, r := range model.Roles() {
		if r.Permits(model.InitialStatus) {
			out = append(out, r)
		}
	}
	return out
}
