package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/kovnica/internal/model"
	"github.com/erazemk/kovnica/internal/sale"
)

// NewRouter creates the API router with all endpoints registered. A nil
// verifier disables mint reporting.
func NewRouter(db *sql.DB, jwtSecret string, sales *sale.Service, verifier MintVerifier) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	salesHandler := &SalesHandler{DB: db, Sales: sales, Verifier: verifier}
	allowlistHandler := &AllowlistHandler{DB: db, Sales: sales}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireOperator := RequireRole(model.RoleOperator)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Public: sale state, eligibility, proofs and mint reports.
	mux.HandleFunc("GET /api/items", salesHandler.Catalog)
	mux.HandleFunc("GET /api/items/{id}/sale", salesHandler.SaleState)
	mux.HandleFunc("GET /api/items/{id}/eligibility", salesHandler.Eligibility)
	mux.HandleFunc("POST /api/items/{id}/mints", salesHandler.ReportMint)
	mux.HandleFunc("GET /api/allowlist/root", allowlistHandler.Root)
	mux.HandleFunc("GET /api/allowlist/proof", allowlistHandler.Proof)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Overrides, ledger and allowlist (operator+).
	mux.Handle("GET /api/items/{id}/override", authMW(requireOperator(http.HandlerFunc(salesHandler.GetOverride))))
	mux.Handle("PUT /api/items/{id}/override", authMW(requireOperator(http.HandlerFunc(salesHandler.PutOverride))))
	mux.Handle("GET /api/items/{id}/mints", authMW(requireOperator(http.HandlerFunc(salesHandler.ListMints))))
	mux.Handle("GET /api/allowlist", authMW(requireOperator(http.HandlerFunc(allowlistHandler.List))))
	mux.Handle("PUT /api/allowlist", authMW(requireOperator(http.HandlerFunc(allowlistHandler.Upload))))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	return mux
}
