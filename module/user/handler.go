package user

import (
	"net/http"
	"regexp"
	"strings"

	"Messenger/global"
	"Messenger/logger"
	"Messenger/middleware"
	"Messenger/store"
	"Messenger/tools/security"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// REST account surface: register, login, avatar upload. Kept deliberately
// thin; everything live goes over the websocket.

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Handler struct {
	cfg   *global.Config
	store *store.Store
}

func NewHandler(cfg *global.Config, st *store.Store) *Handler {
	return &Handler{cfg: cfg, store: st}
}

func (h *Handler) Routes(r *gin.Engine) {
	api := r.Group("/api")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)

	authed := api.Group("", middleware.Auth(security.DefaultOptions(h.cfg.JWTSecret)))
	authed.POST("/avatar", h.UploadAvatar)
}

type registerReq struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResp struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "all fields are required")
		return
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	switch {
	case req.Username == "" || req.Password == "" || req.DisplayName == "":
		badRequest(c, "all fields are required")
		return
	case len(req.Username) < 3 || len(req.Username) > 30:
		badRequest(c, "username must be 3-30 characters")
		return
	case !usernameRe.MatchString(req.Username):
		badRequest(c, "username: letters, digits and _ only")
		return
	case len(req.Password) < 4:
		badRequest(c, "password must be at least 4 characters")
		return
	}

	existing, err := h.store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		serverError(c, err)
		return
	}
	if existing != nil {
		badRequest(c, "username is taken")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 10)
	if err != nil {
		serverError(c, err)
		return
	}

	u, err := h.store.CreateUser(c.Request.Context(), req.Username, req.DisplayName, string(hash), store.RandomAvatarColor())
	if err != nil {
		serverError(c, err)
		return
	}

	token, _, err := security.Generate(security.DefaultOptions(h.cfg.JWTSecret), u.ID)
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, authResp{Token: token, User: u})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "enter username and password")
		return
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Username == "" || req.Password == "" {
		badRequest(c, "enter username and password")
		return
	}

	u, err := h.store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		serverError(c, err)
		return
	}
	if u == nil {
		badRequest(c, "user not found")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		badRequest(c, "wrong password")
		return
	}

	token, _, err := security.Generate(security.DefaultOptions(h.cfg.JWTSecret), u.ID)
	if err != nil {
		serverError(c, err)
		return
	}
	u.PasswordHash = ""
	c.JSON(http.StatusOK, authResp{Token: token, User: u})
}

type avatarReq struct {
	AvatarURL string `json:"avatarUrl"`
}

// UploadAvatar stores a data-URL avatar on the user row. The live
// "avatar changed" broadcast rides the websocket (avatar:updated).
func (h *Handler) UploadAvatar(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	var req avatarReq
	if err := c.ShouldBindJSON(&req); err != nil || req.AvatarURL == "" {
		badRequest(c, "missing avatar")
		return
	}
	if !strings.HasPrefix(req.AvatarURL, "data:image/") {
		badRequest(c, "avatar must be an image data URL")
		return
	}
	if len(req.AvatarURL) > h.cfg.MaxAvatarBytes {
		badRequest(c, "avatar too large")
		return
	}

	if err := h.store.SetAvatar(c.Request.Context(), userID, req.AvatarURL); err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatarUrl": req.AvatarURL})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func serverError(c *gin.Context, err error) {
	logger.Errorf("[api] %s: %v", c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
}
