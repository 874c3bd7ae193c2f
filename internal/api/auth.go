package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"noteflare/internal/models"
	"noteflare/internal/repositories"
	"noteflare/internal/utils"
)

type ctxKey int

const userIDKey ctxKey = iota

// UserIDFrom returns the authenticated user id stored by RequireAuth.
func UserIDFrom(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(userIDKey).(uint)
	return id, ok
}

// AuthHandler manages authentication endpoints.
type AuthHandler struct {
	Repo          *repositories.UserRepository
	JWTSecret     []byte
	SecureCookies bool
	log           *utils.Logger
	now           func() time.Time
}

func NewAuthHandler(repo *repositories.UserRepository, secret string, secureCookies bool, log *utils.Logger) *AuthHandler {
	if log == nil {
		log = utils.NewNopLogger()
	}
	return &AuthHandler{
		Repo:          repo,
		JWTSecret:     []byte(secret),
		SecureCookies: secureCookies,
		log:           log,
		now:           time.Now,
	}
}

// RequireAuth rejects requests without a valid token and stores the caller's
// id in the request context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := utils.TokenFromRequest(r)
		if err != nil {
			utils.JSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		claims, err := utils.ValidateToken(token, h.JWTSecret)
		if err != nil {
			utils.JSONError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		userID, err := utils.UserIDFromClaims(claims)
		if err != nil {
			utils.JSONError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string, maxAge int) {
	cookie := &http.Cookie{
		Name:     utils.TokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
	if h.SecureCookies {
		cookie.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, cookie)
}

func (h *AuthHandler) issue(w http.ResponseWriter, status int, user *models.User) {
	token, err := utils.IssueToken(user.ID, user.Username, h.JWTSecret, h.now())
	if err != nil {
		h.log.Error("failed to sign token", "userId", user.ID, "error", err.Error())
		utils.JSONError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	h.setTokenCookie(w, token, int(utils.TokenTTL.Seconds()))
	utils.JSON(w, status, models.AuthResponse{User: *user, Token: token})
}

func decodeCredentials(r *http.Request) (models.Credentials, error) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		return creds, err
	}
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		return creds, errors.New("username and password are required")
	}
	return creds, nil
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	creds, err := decodeCredentials(r)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	user := &models.User{Username: creds.Username, PasswordHash: string(hash)}
	if err := h.Repo.CreateUser(user); err != nil {
		if errors.Is(err, repositories.ErrUsernameTaken) {
			utils.JSONError(w, http.StatusConflict, "user already exists")
			return
		}
		h.log.Error("failed to create user", "username", creds.Username, "error", err.Error())
		utils.JSONError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	h.log.Info("user signed up", "userId", user.ID, "username", user.Username)
	h.issue(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	creds, err := decodeCredentials(r)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	user, err := h.Repo.GetUserByUsername(creds.Username)
	if err != nil {
		if !errors.Is(err, repositories.ErrUserNotFound) {
			h.log.Error("failed to load user", "username", creds.Username, "error", err.Error())
		}
		utils.JSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)) != nil {
		utils.JSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.issue(w, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.setTokenCookie(w, "", -1)
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	user, err := h.Repo.GetUserByID(userID)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "user not found")
		return
	}
	utils.JSON(w, http.StatusOK, models.AuthResponse{User: *user})
}
