// Package identity adapts the external identity collaborator. Login happens
// upstream; this package only carries the resulting caller identity.
package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const (
	HeaderEmployeeID = "X-Employee-ID"
	HeaderRole       = "X-Employee-Role"
)

type Role string

const (
	RoleCashier Role = "cashier"
	RoleManager Role = "manager"
	RoleOwner   Role = "owner"
)

type Identity struct {
	EmployeeID string `json:"employee_id"`
	Role       Role   `json:"role"`
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Middleware rejects requests that arrive without an employee identity.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		employeeID := strings.TrimSpace(r.Header.Get(HeaderEmployeeID))
		if employeeID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "missing employee identity"})
			return
		}

		role := Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole))))
		if role == "" {
			role = RoleCashier
		}

		ctx := WithIdentity(r.Context(), Identity{EmployeeID: employeeID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
