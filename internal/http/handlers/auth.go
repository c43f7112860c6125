package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/booknotes/internal/auth"
	"github.com/geocoder89/booknotes/internal/config"
	"github.com/geocoder89/booknotes/internal/domain/user"
	"github.com/geocoder89/booknotes/internal/http/middlewares"
	"github.com/geocoder89/booknotes/internal/notifications"
	"github.com/geocoder89/booknotes/internal/observability"
	"github.com/geocoder89/booknotes/internal/repo"
	"github.com/geocoder89/booknotes/internal/security"
)

// CodeTTL is how long verification and reset codes stay valid.
const CodeTTL = 15 * time.Minute

// MaxCodeAttempts wrong guesses burn a code; a new one must be requested.
const MaxCodeAttempts = 5

type TokenIssuer interface {
	GeneratePair(userID, email string) (auth.Pair, error)
	VerifyRefreshToken(token string) (*auth.Claims, error)
	HashRefreshToken(raw string) string
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Check(hash, plain string) error
}

type AuthHandler struct {
	users    repo.UserStore
	jwt      TokenIssuer
	hasher   PasswordHasher
	notifier notifications.Notifier
	prom     *observability.Prom
	log      *slog.Logger
	now      func() time.Time
}

func NewAuthHandler(users repo.UserStore, jwt TokenIssuer, hasher PasswordHasher, notifier notifications.Notifier, prom *observability.Prom, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		users:    users,
		jwt:      jwt,
		hasher:   hasher,
		notifier: notifier,
		prom:     prom,
		log:      log,
		now:      time.Now,
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,notblank,min=2,max=50"`
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=6,maxbytes=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type VerifyEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

type ResetPasswordRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Code     string `json:"code" binding:"required,len=6,numeric"`
	Password string `json:"password" binding:"required,min=6,maxbytes=72"`
}

type AuthResponse struct {
	User         user.Summary `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	email := user.NormalizeEmail(req.Email)

	_, err := h.users.GetByEmail(cctx, email)
	switch {
	case err == nil:
		h.prom.AuthOutcome("register", "email_taken")
		RespondConflict(ctx, "email_taken", "Email is already in use.")
		return
	case !errors.Is(err, user.ErrNotFound):
		h.log.ErrorContext(cctx, "register lookup failed", "err", err)
		RespondStoreError(ctx, err, "Could not create user")
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.log.ErrorContext(cctx, "password hash failed", "err", err)
		RespondStoreError(ctx, err, "Could not create user")
		return
	}

	u := user.New(req.Name, email, hash)

	if err := h.users.Create(cctx, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			h.prom.AuthOutcome("register", "email_taken")
			RespondConflict(ctx, "email_taken", "Email is already in use.")
			return
		}
		h.log.ErrorContext(cctx, "create user failed", "err", err)
		RespondStoreError(ctx, err, "Could not create user")
		return
	}

	pair, ok := h.issueSession(ctx, cctx, u)
	if !ok {
		return
	}

	h.prom.AuthOutcome("register", "ok")
	ctx.JSON(http.StatusCreated, AuthResponse{
		User:         u.Summary(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, user.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			h.prom.AuthOutcome("login", "invalid_credentials")
			RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
			return
		}
		h.log.ErrorContext(cctx, "login lookup failed", "err", err)
		RespondStoreError(ctx, err, "Could not log in")
		return
	}

	if err := h.hasher.Check(foundUser.PasswordHash, req.Password); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			h.prom.AuthOutcome("login", "invalid_credentials")
			RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
			return
		}
		h.log.ErrorContext(cctx, "password check failed", "err", err)
		RespondStoreError(ctx, err, "Could not log in")
		return
	}

	pair, ok := h.issueSession(ctx, cctx, foundUser)
	if !ok {
		return
	}

	h.prom.AuthOutcome("login", "ok")
	ctx.JSON(http.StatusOK, AuthResponse{
		User:         foundUser.Summary(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// issueSession mints a token pair and records the refresh digest. On failure
// it has already written the response.
func (h *AuthHandler) issueSession(ctx *gin.Context, cctx context.Context, u user.User) (auth.Pair, bool) {
	pair, err := h.jwt.GeneratePair(u.ID, u.Email)
	if err != nil {
		h.log.ErrorContext(cctx, "token generation failed", "err", err)
		RespondStoreError(ctx, err, "Could not create session")
		return auth.Pair{}, false
	}

	if err := h.users.AddRefreshToken(cctx, u.ID, h.jwt.HashRefreshToken(pair.RefreshToken)); err != nil {
		h.log.ErrorContext(cctx, "store refresh token failed", "err", err, "user_id", u.ID)
		RespondStoreError(ctx, err, "Could not create session")
		return auth.Pair{}, false
	}

	return pair, true
}

// Logout revokes one refresh token. Revoking a token that is no longer
// active still succeeds, with revoked=false.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	var req RefreshTokenRequest

	if !BindJSON(ctx, &req) {
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		h.prom.AuthOutcome("logout", "invalid_token")
		RespondUnAuthorized(ctx, "invalid_token", "Invalid or expired refresh token.")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	revoked, err := h.users.RemoveRefreshToken(cctx, claims.UserID, h.jwt.HashRefreshToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		h.log.ErrorContext(cctx, "logout failed", "err", err, "user_id", claims.UserID)
		RespondStoreError(ctx, err, "Could not log out")
		return
	}

	h.prom.AuthOutcome("logout", "ok")
	ctx.JSON(http.StatusOK, gin.H{
		"message": "Logged out",
		"revoked": revoked,
	})
}

// Refresh rotates a refresh token: the presented token stops being valid and
// a new pair is returned.
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	var req RefreshTokenRequest

	if !BindJSON(ctx, &req) {
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		h.prom.AuthOutcome("refresh", "invalid_token")
		RespondUnAuthorized(ctx, "invalid_token", "Invalid or expired refresh token.")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	pair, err := h.jwt.GeneratePair(claims.UserID, claims.Email)
	if err != nil {
		h.log.ErrorContext(cctx, "token generation failed", "err", err)
		RespondStoreError(ctx, err, "Could not refresh session")
		return
	}

	rotated, err := h.users.ReplaceRefreshToken(cctx, claims.UserID,
		h.jwt.HashRefreshToken(req.RefreshToken),
		h.jwt.HashRefreshToken(pair.RefreshToken),
	)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		h.log.ErrorContext(cctx, "refresh rotation failed", "err", err, "user_id", claims.UserID)
		RespondStoreError(ctx, err, "Could not refresh session")
		return
	}

	if !rotated {
		h.prom.AuthOutcome("refresh", "revoked")
		RespondUnAuthorized(ctx, "invalid_token", "Refresh token has been revoked.")
		return
	}

	h.prom.AuthOutcome("refresh", "ok")
	ctx.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		h.log.ErrorContext(cctx, "load user failed", "err", err, "user_id", userID)
		RespondStoreError(ctx, err, "Could not load user")
		return
	}

	ctx.JSON(http.StatusOK, u.Summary())
}

// RequestVerification answers the same way whether or not the account exists.
func (h *AuthHandler) RequestVerification(ctx *gin.Context) {
	var req EmailRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, user.NormalizeEmail(req.Email))
	switch {
	case errors.Is(err, user.ErrNotFound):
	case err != nil:
		h.log.ErrorContext(cctx, "verification lookup failed", "err", err)
		RespondStoreError(ctx, err, "Could not send verification code")
		return
	case !u.IsVerified:
		if !h.sendCode(ctx, cctx, u, user.CodeVerification, notifications.PurposeVerifyEmail) {
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "If the account exists and is not verified, a code has been sent."})
}

func (h *AuthHandler) VerifyEmail(ctx *gin.Context) {
	var req VerifyEmailRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	u, ok := h.checkCode(ctx, cctx, req.Email, req.Code, user.CodeVerification)
	if !ok {
		return
	}

	if err := h.users.MarkVerified(cctx, u.ID); err != nil {
		h.log.ErrorContext(cctx, "mark verified failed", "err", err, "user_id", u.ID)
		RespondStoreError(ctx, err, "Could not verify email")
		return
	}

	u.IsVerified = true
	h.prom.AuthOutcome("verify", "ok")
	ctx.JSON(http.StatusOK, gin.H{"message": "Email verified", "user": u.Summary()})
}

func (h *AuthHandler) ForgotPassword(ctx *gin.Context) {
	var req EmailRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, user.NormalizeEmail(req.Email))
	switch {
	case errors.Is(err, user.ErrNotFound):
	case err != nil:
		h.log.ErrorContext(cctx, "password reset lookup failed", "err", err)
		RespondStoreError(ctx, err, "Could not send reset code")
		return
	default:
		if !h.sendCode(ctx, cctx, u, user.CodePasswordReset, notifications.PurposePasswordReset) {
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "If the account exists, a reset code has been sent."})
}

func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	var req ResetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	u, ok := h.checkCode(ctx, cctx, req.Email, req.Code, user.CodePasswordReset)
	if !ok {
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.log.ErrorContext(cctx, "password hash failed", "err", err)
		RespondStoreError(ctx, err, "Could not reset password")
		return
	}

	if err := h.users.ResetPassword(cctx, u.ID, hash); err != nil {
		h.log.ErrorContext(cctx, "reset password failed", "err", err, "user_id", u.ID)
		RespondStoreError(ctx, err, "Could not reset password")
		return
	}

	h.prom.AuthOutcome("password_reset", "ok")
	ctx.JSON(http.StatusOK, gin.H{"message": "Password updated. Please log in again."})
}

// sendCode stores a fresh code digest and hands the plain code to the
// notifier. A delivery failure is logged but not surfaced, so responses do not
// reveal which emails are registered.
func (h *AuthHandler) sendCode(ctx *gin.Context, cctx context.Context, u user.User, slot user.CodePurpose, purpose notifications.Purpose) bool {
	code, err := security.GenerateCode()
	if err != nil {
		h.log.ErrorContext(cctx, "code generation failed", "err", err)
		RespondStoreError(ctx, err, "Could not send code")
		return false
	}

	expiresAt := h.now().UTC().Add(CodeTTL)

	if err := h.users.SetCode(cctx, u.ID, slot, security.HashCode(code), expiresAt); err != nil {
		h.log.ErrorContext(cctx, "store code failed", "err", err, "user_id", u.ID)
		RespondStoreError(ctx, err, "Could not send code")
		return false
	}

	if h.notifier == nil {
		return true
	}

	err = h.notifier.SendCode(cctx, notifications.CodeMessage{
		Email:     u.Email,
		Name:      u.Name,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		h.log.WarnContext(cctx, "code delivery failed", "err", err, "user_id", u.ID, "purpose", string(purpose))
	}
	return true
}

func (h *AuthHandler) checkCode(ctx *gin.Context, cctx context.Context, email, code string, slot user.CodePurpose) (user.User, bool) {
	u, err := h.users.GetByEmail(cctx, user.NormalizeEmail(email))
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		h.log.ErrorContext(cctx, "code lookup failed", "err", err)
		RespondStoreError(ctx, err, "Could not check code")
		return user.User{}, false
	}

	if err == nil {
		digest, expiresAt := u.Code(slot)
		if digest != "" && expiresAt != nil && h.now().Before(*expiresAt) {
			if security.CodeMatches(digest, code) {
				return u, true
			}
			if err := h.users.RecordCodeFailure(cctx, u.ID, slot, MaxCodeAttempts); err != nil {
				h.log.WarnContext(cctx, "record code failure failed", "err", err, "user_id", u.ID)
			}
		}
	}

	h.prom.AuthOutcome(string(slot), "invalid_code")
	RespondError(ctx, http.StatusBadRequest, "invalid_code", "Invalid or expired code.", nil)
	return user.User{}, false
}
