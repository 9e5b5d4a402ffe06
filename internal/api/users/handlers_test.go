package users

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codr1/TennisBuddy/internal/api/authz"
	"github.com/codr1/TennisBuddy/internal/db"
	"github.com/codr1/TennisBuddy/internal/testutil"
)

func setupUsersTest(t *testing.T) (*http.ServeMux, *db.DB) {
	t.Helper()

	database := testutil.NewTestDB(t)
	prev := users
	t.Cleanup(func() { users = prev })
	users = db.NewUserStore(database)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/users/me", HandleCurrentUser)
	mux.HandleFunc("GET /api/v1/users", HandleUsersList)
	mux.HandleFunc("GET /api/v1/users/{id}", HandleUserGet)
	mux.HandleFunc("PATCH /api/v1/users/{id}", HandleUserUpdate)
	mux.HandleFunc("DELETE /api/v1/users/{id}", HandleUserDelete)
	return mux, database
}

func as(u *db.User) *authz.AuthUser {
	return &authz.AuthUser{ID: u.ID, Email: u.Email, Role: u.Role}
}

func serve(mux *http.ServeMux, method, target, body string, user *authz.AuthUser) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != nil {
		req = req.WithContext(authz.ContextWithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCurrentUserHidesPasswordHash(t *testing.T) {
	mux, database := setupUsersTest(t)
	alice := testutil.SeedUser(t, database, "alice@example.com", db.RoleMember, "secret-hash")

	if rec := serve(mux, http.MethodGet, "/api/v1/users/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec := serve(mux, http.MethodGet, "/api/v1/users/me", "", as(alice))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "secret-hash") || strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("password hash leaked: %s", rec.Body.String())
	}

	rec = serve(mux, http.MethodGet, "/api/v1/users", "", nil)
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "secret-hash") {
		t.Fatalf("unexpected list response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateUser(t *testing.T) {
	mux, database := setupUsersTest(t)
	alice := testutil.SeedUser(t, database, "alice@example.com", db.RoleMember, "hash")
	bob := testutil.SeedUser(t, database, "bob@example.com", db.RoleMember, "hash")
	admin := testutil.SeedUser(t, database, "admin@example.com", db.RoleAdmin, "hash")

	rec := serve(mux, http.MethodPatch, "/api/v1/users/"+alice.ID, `{"skill":"4.0","phone":"(650) 253-0000"}`, as(alice))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated db.User
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Skill != "4.0" || updated.Phone == nil || *updated.Phone != "+16502530000" {
		t.Fatalf("unexpected user %+v", updated)
	}

	if rec := serve(mux, http.MethodPatch, "/api/v1/users/"+alice.ID, `{"name":"Mallory"}`, as(bob)); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := serve(mux, http.MethodPatch, "/api/v1/users/"+alice.ID, `{"name":"Alice A."}`, as(admin)); rec.Code != http.StatusOK {
		t.Fatalf("expected admin update, got %d", rec.Code)
	}

	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: `{}`},
		{name: "blank name", body: `{"name":" "}`},
		{name: "bad phone", body: `{"phone":"12"}`},
		{name: "email not editable", body: `{"email":"x@example.com"}`},
		{name: "long skill", body: `{"skill":"` + strings.Repeat("x", 51) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(mux, http.MethodPatch, "/api/v1/users/"+alice.ID, tt.body, as(alice)); rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	rec = serve(mux, http.MethodPatch, "/api/v1/users/"+alice.ID, `{"phone":""}`, as(alice))
	updated = db.User{}
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil || updated.Phone != nil {
		t.Fatalf("expected phone to be cleared, got %+v %v", updated, err)
	}
}

func TestDeleteUser(t *testing.T) {
	mux, database := setupUsersTest(t)
	alice := testutil.SeedUser(t, database, "alice@example.com", db.RoleMember, "hash")
	bob := testutil.SeedUser(t, database, "bob@example.com", db.RoleMember, "hash")

	if rec := serve(mux, http.MethodDelete, "/api/v1/users/"+alice.ID, "", as(bob)); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := serve(mux, http.MethodDelete, "/api/v1/users/"+alice.ID, "", as(alice)); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := serve(mux, http.MethodGet, "/api/v1/users/"+alice.ID, "", nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "User not found") {
		t.Fatalf("expected 404 User not found, got %d: %s", rec.Code, rec.Body.String())
	}
}
