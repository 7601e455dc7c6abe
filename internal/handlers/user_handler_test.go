package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	"pulse/internal/models"
)

func newUserRouter(users *fakeUserRepo) *chi.Mux {
	h := NewUserHandler(users)
	r := chi.NewRouter()
	r.Get("/users", h.ListUsers)
	r.Get("/users/{id}", h.GetUser)
	r.Put("/users/{id}", h.UpdateUser)
	r.Put("/users/{id}/password", h.ChangePassword)
	r.Delete("/users/{id}", h.DeleteUser)
	return r
}

func seedPlainUser(t *testing.T, users *fakeUserRepo, id, email, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if err := users.Create(context.Background(), &models.User{
		ID:           id,
		Email:        email,
		Name:         "Someone",
		Role:         "member",
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestListUsersReturnsEmptyArray(t *testing.T) {
	router := newUserRouter(newFakeUserRepo())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("expected empty array, got %s", got)
	}
}

func TestGetUserOmitsPasswordHash(t *testing.T) {
	users := newFakeUserRepo()
	seedPlainUser(t, users, "u1", "ada@example.com", "secret-1")
	router := newUserRouter(users)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/u1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var raw map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw["email"] != "ada@example.com" {
		t.Errorf("unexpected email: %v", raw["email"])
	}
	for key := range raw {
		if strings.Contains(strings.ToLower(key), "password") {
			t.Errorf("response leaks field %q", key)
		}
	}
}

func TestUpdateUserAppliesPartialChanges(t *testing.T) {
	users := newFakeUserRepo()
	seedPlainUser(t, users, "u1", "ada@example.com", "secret-1")
	router := newUserRouter(users)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/users/u1",
		strings.NewReader(`{"name":"Ada Lovelace"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	u, err := users.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if u.Name != "Ada Lovelace" {
		t.Errorf("name not updated: %q", u.Name)
	}
	if u.Email != "ada@example.com" {
		t.Errorf("email should be untouched: %q", u.Email)
	}
}

func TestChangePasswordRequiresCurrentPassword(t *testing.T) {
	users := newFakeUserRepo()
	seedPlainUser(t, users, "u1", "ada@example.com", "secret-1")
	router := newUserRouter(users)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/users/u1/password",
		strings.NewReader(`{"old_password":"wrong","new_password":"secret-2"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current password: expected 401, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/users/u1/password",
		strings.NewReader(`{"old_password":"secret-1","new_password":"secret-2"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	u, _ := users.GetByID(context.Background(), "u1")
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret-2")); err != nil {
		t.Errorf("password not rotated: %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	users := newFakeUserRepo()
	seedPlainUser(t, users, "u1", "ada@example.com", "secret-1")
	router := newUserRouter(users)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/users/u1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/users/u1", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rr.Code)
	}
}
