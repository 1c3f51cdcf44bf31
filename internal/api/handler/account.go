package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/fellows/internal/apierr"
	"github.com/jmerrifield20/fellows/internal/login"
	"github.com/jmerrifield20/fellows/internal/reporting"
	"github.com/jmerrifield20/fellows/internal/users"
	"go.uber.org/zap"
)

// accountSvc is the subset of users.Service used by AccountHandler.
type accountSvc interface {
	Register(ctx context.Context, in users.RegisterInput) (*users.Profile, error)
	CheckStatus(ctx context.Context, email string) (users.RegistrationStatus, error)
	GetProfile(ctx context.Context, accountID int64) (*users.Profile, error)
	UpdateProfile(ctx context.Context, accountID int64, u users.ProfileUpdate) (*users.Profile, error)
	ListProfiles(ctx context.Context, search string) ([]*users.Profile, error)
	GetProfileByID(ctx context.Context, accountID int64) (*users.Profile, error)
	ListSDGs(ctx context.Context) ([]users.SDG, error)
}

// loginSvc is satisfied by *login.Service.
type loginSvc interface {
	Login(ctx context.Context, req login.Request) (*login.Result, error)
}

// AccountHandler serves registration, login, and profile endpoints.
type AccountHandler struct {
	base
	users accountSvc
	login loginSvc
	auth  gin.HandlerFunc
}

// NewAccountHandler creates an AccountHandler. auth guards the
// token-protected routes.
func NewAccountHandler(usersSvc accountSvc, loginSvc loginSvc, auth gin.HandlerFunc, reporter reporting.Reporter, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		base:  newBase(reporter, logger),
		users: usersSvc,
		login: loginSvc,
		auth:  auth,
	}
}

// Register registers AccountHandler routes on the given router group.
func (h *AccountHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/register", h.RegisterUser)
	rg.GET("/registration-status", h.RegistrationStatus)
	rg.POST("/login", h.Login)
	rg.GET("/sdgs", h.ListSDGs)

	authed := rg.Group("", h.auth)
	authed.GET("/profile", h.GetProfile)
	authed.POST("/profile", h.UpdateProfile)
	authed.GET("/users", h.ListUsers)
	authed.GET("/users/:id", h.GetUser)
}

// RegisterUser handles POST /register.
func (h *AccountHandler) RegisterUser(c *gin.Context) {
	var in users.RegisterInput
	if !h.bind(c, "register", &in) {
		recordRegistration("invalid")
		return
	}

	if _, err := h.users.Register(c.Request.Context(), in); err != nil {
		var ve *apierr.ValidationError
		if errors.As(err, &ve) {
			recordRegistration("invalid")
		} else {
			recordRegistration("error")
		}
		h.fail(c, "register", err)
		return
	}

	recordRegistration("success")
	success(c, http.StatusCreated, "User created successfully", nil)
}

// RegistrationStatus handles GET /registration-status?email=. An email with
// no account gets 204 and an empty body, so clients must branch on the
// status code before decoding.
func (h *AccountHandler) RegistrationStatus(c *gin.Context) {
	email := c.Query("email")
	status, err := h.users.CheckStatus(c.Request.Context(), email)
	if err != nil {
		h.fail(c, "registration status", err)
		return
	}
	if status == users.StatusNotFound {
		c.Status(http.StatusNoContent)
		return
	}

	success(c, http.StatusOK, "Your registration is "+status.String(), gin.H{
		"email":      users.NormalizeEmail(email),
		"isApproved": status == users.StatusApproved,
	})
}

// Login handles POST /login.
func (h *AccountHandler) Login(c *gin.Context) {
	var req login.Request
	if !h.bind(c, "login", &req) {
		recordLogin(strings.ToUpper(req.AuthProvider), "invalid")
		return
	}

	res, err := h.login.Login(c.Request.Context(), req)
	if err != nil {
		recordLogin(strings.ToUpper(req.AuthProvider), loginOutcome(err))
		h.fail(c, "login", err)
		return
	}

	recordLogin(string(res.Provider), "success")
	success(c, http.StatusOK, "You are logged in.", gin.H{"appToken": res.Token.Key})
}

func loginOutcome(err error) string {
	var (
		ve *apierr.ValidationError
		ae *apierr.Error
	)
	switch {
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &ae):
		return strconv.Itoa(ae.Code)
	default:
		return "error"
	}
}

// ListSDGs handles GET /sdgs.
func (h *AccountHandler) ListSDGs(c *gin.Context) {
	sdgs, err := h.users.ListSDGs(c.Request.Context())
	if err != nil {
		h.fail(c, "list sdgs", err)
		return
	}
	if sdgs == nil {
		sdgs = []users.SDG{}
	}
	c.JSON(http.StatusOK, sdgs)
}

// GetProfile handles GET /profile.
func (h *AccountHandler) GetProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	profile, err := h.users.GetProfile(c.Request.Context(), p.AccountID)
	if err != nil {
		h.fail(c, "get profile", err)
		return
	}
	success(c, http.StatusOK, "", gin.H{"profile": profile})
}

// UpdateProfile handles POST /profile. Only the fields present in the body
// change; points, isJuniorFellow and user are ignored.
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var u users.ProfileUpdate
	if !h.bind(c, "update profile", &u) {
		return
	}
	profile, err := h.users.UpdateProfile(c.Request.Context(), p.AccountID, u)
	if err != nil {
		h.fail(c, "update profile", err)
		return
	}
	success(c, http.StatusOK, "", gin.H{"profile": profile})
}

// ListUsers handles GET /users?search=.
func (h *AccountHandler) ListUsers(c *gin.Context) {
	profiles, err := h.users.ListProfiles(c.Request.Context(), strings.TrimSpace(c.Query("search")))
	if err != nil {
		h.fail(c, "list users", err)
		return
	}
	c.JSON(http.StatusOK, profiles)
}

// GetUser handles GET /users/:id.
func (h *AccountHandler) GetUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, "get user", apierr.UserNotFound)
		return
	}
	profile, err := h.users.GetProfileByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get user", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
