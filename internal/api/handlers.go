// Package api is the HTTP surface of a replica.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"replicated-feed/internal/cluster"
	"replicated-feed/internal/delivery"
	"replicated-feed/internal/event"
	"replicated-feed/internal/feed"
)

type API struct {
	node *cluster.Node
	log  *zap.Logger
}

func NewAPI(node *cluster.Node, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{node: node, log: log}
}

// NewRouter returns a gin engine with the middleware and routes installed.
func NewRouter(a *API) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(a.log), Logger(a.log))
	a.SetupRoutes(r)
	return r
}

func (a *API) SetupRoutes(r *gin.Engine) {
	// local writes from users and remote shares from peers
	r.POST("/post", a.Post)
	r.POST("/share", a.Share)

	// read-only presentation
	fd := r.Group("/feed")
	{
		fd.GET("", a.Feed)
		fd.GET("/text", a.FeedText)
	}
	r.GET("/status", a.Status)

	cl := r.Group("/cluster")
	{
		cl.GET("/members", a.Members)
	}
}

func (a *API) Post(c *gin.Context) {
	var req event.Write
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ack, err := a.node.Post(req.Message(a.node.ID()))
	switch {
	case errors.Is(err, cluster.ErrForeignWrite):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, delivery.ErrDuplicateEvent):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ack)
}

func (a *API) Share(c *gin.Context) {
	var m event.Message
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ack, res, err := a.node.Share(m)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.log.Debug("share received",
		zap.String("evt_id", m.EventID),
		zap.Int("sender", m.ProcessID),
		zap.Stringer("result", res.Status))

	c.JSON(http.StatusOK, ack)
}

func (a *API) Feed(c *gin.Context) {
	c.JSON(http.StatusOK, a.node.View())
}

func (a *API) FeedText(c *gin.Context) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	if err := feed.Render(c.Writer, a.node.View()); err != nil {
		a.log.Warn("render feed", zap.Error(err))
	}
}

func (a *API) Status(c *gin.Context) {
	c.JSON(http.StatusOK, a.node.View().Summary())
}

func (a *API) Members(c *gin.Context) {
	m := a.node.Members()
	c.JSON(http.StatusOK, gin.H{
		"self":    m.Self().ID,
		"members": m.All(),
	})
}
