// Package api implements HTTP handlers and helpers for the TripMatch service.
package api

import (
    "net/http"
    "strings"
)

type Principal struct {
	Tenant string
	Role   string // master, partner, employee, customer
	UserID string
}

// getPrincipal extracts tenant and role from JWT or headers.
// - If Authorization: Bearer is present, uses configured verifier (dev/hmac/jwks).
// - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            t := s.normalizeTenantID(pr.Tenant)
            return Principal{Tenant: t, Role: pr.Role, UserID: pr.UserID}
        }
    }
    tenant := r.Header.Get("X-Tenant-Id")
    role := r.Header.Get("X-Role")
    userID := r.Header.Get("X-User-Id")
    if tenant == "" {
        tenant = "t_demo"
    }
    tenant = s.normalizeTenantID(tenant)
    if role == "" {
        role = "master"
    }
    return Principal{Tenant: tenant, Role: role, UserID: userID}
}

// normalizeTenantID trims whitespace and lowercases tenant identifiers so
// header and token callers address the same tenant keyspace.
func (s *Server) normalizeTenantID(t string) string {
    return strings.ToLower(strings.TrimSpace(t))
}

// IsMaster reports whether the principal has the master role.
func (p Principal) IsMaster() bool { return p.Role == "master" }

// canOperate reports whether the principal may drive conversion workflows.
func (p Principal) canOperate() bool {
    switch p.Role {
    case "master", "partner", "employee":
        return true
    }
    return false
}
