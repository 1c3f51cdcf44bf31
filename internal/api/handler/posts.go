package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/fellows/internal/apierr"
	"github.com/jmerrifield20/fellows/internal/posts"
	"github.com/jmerrifield20/fellows/internal/reporting"
	"go.uber.org/zap"
)

// postSvc is the subset of posts.Service used by PostHandler.
type postSvc interface {
	List(ctx context.Context, search string) ([]*posts.Summary, error)
	Get(ctx context.Context, id int64) (*posts.Post, error)
}

// PostHandler serves the public post feed.
type PostHandler struct {
	base
	posts postSvc
}

// NewPostHandler creates a PostHandler.
func NewPostHandler(svc postSvc, reporter reporting.Reporter, logger *zap.Logger) *PostHandler {
	return &PostHandler{base: newBase(reporter, logger), posts: svc}
}

// Register registers PostHandler routes on the given router group.
func (h *PostHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/posts", h.List)
	rg.GET("/posts/:id", h.Get)
}

// List handles GET /posts?search=.
func (h *PostHandler) List(c *gin.Context) {
	out, err := h.posts.List(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.fail(c, "list posts", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Get handles GET /posts/:id.
func (h *PostHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, "get post", apierr.PostNotFound)
		return
	}
	p, err := h.posts.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get post", err)
		return
	}
	c.JSON(http.StatusOK, p)
}
