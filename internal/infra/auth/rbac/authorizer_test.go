package rbac

import (
	"testing"

	"aci/internal/domain"
)

func TestAuthorizer_MissingScope(t *testing.T) {
	authz := NewAuthorizer()
	principal := domain.Principal{
		Subject: "user",
		Scopes:  []string{"trust:read"},
	}
	err := authz.Require(principal, "provenance:write")
	authzErr, ok := IsAuthzError(err)
	if !ok {
		t.Fatalf("expected authz error, got %v", err)
	}
	if authzErr.Code != "MISSING_SCOPE" {
		t.Fatalf("expected MISSING_SCOPE, got %s", authzErr.Code)
	}
}

func TestAuthorizer_AdminBypasses(t *testing.T) {
	authz := NewAuthorizer()
	principal := domain.Principal{
		Subject: "admin",
		Roles:   []string{DefaultAdminRole},
	}
	if err := authz.Require(principal, "admin:gating:run"); err != nil {
		t.Fatalf("expected admin allow, got %v", err)
	}
	if err := authz.Require(principal, "trust:read"); err != nil {
		t.Fatalf("expected admin allow, got %v", err)
	}
}

func TestAuthorizer_AdminPermissionRequiresRole(t *testing.T) {
	authz := NewAuthorizer()
	principal := domain.Principal{
		Subject: "user",
		Scopes:  []string{"trust:read"},
	}
	err := authz.Require(principal, "admin:gating:run")
	authzErr, ok := IsAuthzError(err)
	if !ok {
		t.Fatalf("expected authz error, got %v", err)
	}
	if authzErr.Code != "MISSING_ROLE" {
		t.Fatalf("expected MISSING_ROLE, got %s", authzErr.Code)
	}
}

func TestAuthorizer_EmptySubjectRejected(t *testing.T) {
	authz := NewAuthorizer()
	if err := authz.Require(domain.Principal{}, "trust:read"); err != domain.ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
