package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Spok95/stockdesk/internal/app/inventory"
	"github.com/Spok95/stockdesk/internal/app/ledger"
	"github.com/Spok95/stockdesk/internal/app/stocktaking"
	"github.com/Spok95/stockdesk/internal/domain/errs"
	"github.com/Spok95/stockdesk/internal/domain/users"
	"github.com/Spok95/stockdesk/internal/infra/metrics"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"

	ctxRequestID = "request_id"
	ctxUser      = "user"
)

// UserStore resolves the caller named by X-User-ID and registers users.
type UserStore interface {
	Create(ctx context.Context, n users.New) (*users.User, error)
	GetByID(ctx context.Context, id int64) (*users.User, error)
}

type API struct {
	ledger      *ledger.Service
	inventory   *inventory.Engine
	stocktaking *stocktaking.Engine
	users       UserStore
	log         *slog.Logger
	m           *metrics.Metrics
	loc         *time.Location
}

type Deps struct {
	Ledger      *ledger.Service
	Inventory   *inventory.Engine
	Stocktaking *stocktaking.Engine
	Users       UserStore
	Log         *slog.Logger
	Metrics     *metrics.Metrics
	Location    *time.Location
}

func NewAPI(d Deps) *gin.Engine {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	a := &API{
		ledger:      d.Ledger,
		inventory:   d.Inventory,
		stocktaking: d.Stocktaking,
		users:       d.Users,
		log:         d.Log,
		m:           d.Metrics,
		loc:         loc,
	}

	r := gin.New()
	r.Use(a.requestID, a.observe, gin.Recovery())

	api := r.Group("/api", a.identify)
	api.POST("/users", a.createUser)

	api.GET("/materials", a.listMaterials)
	api.POST("/materials", a.createMaterial)
	api.GET("/materials/:id", a.getMaterial)
	api.PATCH("/materials/:id", a.updateMaterial)
	api.GET("/materials/:id/history", a.materialHistory)
	api.GET("/materials/:id/history/export", a.exportHistory)

	api.POST("/transactions", a.createTransaction)
	api.GET("/transactions", a.listTransactions)
	api.GET("/transactions/:id", a.getTransaction)
	api.POST("/transactions/:id/decision", a.decideTransaction)
	api.POST("/transactions/:id/cancel", a.cancelTransaction)

	api.POST("/stocktaking", a.createTask)
	api.GET("/stocktaking", a.listTasks)
	api.GET("/stocktaking/:id", a.getTask)
	api.PUT("/stocktaking/:id/items/:itemId", a.recordCount)
	api.POST("/stocktaking/:id/complete", a.completeTask)
	api.POST("/stocktaking/:id/cancel", a.cancelTask)
	api.GET("/stocktaking/:id/report", a.taskReport)
	api.GET("/stocktaking/:id/export", a.exportReport)

	return r
}

func (a *API) requestID(c *gin.Context) {
	id := c.GetHeader(headerRequestID)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	c.Set(ctxRequestID, id)
	c.Header(headerRequestID, id)
	c.Next()
}

func (a *API) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	a.m.ObserveHTTP(route, c.Writer.Status(), time.Since(start))
}

// identify loads the caller from X-User-ID. Authentication happens in front of this service.
func (a *API) identify(c *gin.Context) {
	raw := c.GetHeader(headerUserID)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + headerUserID, "request_id": c.GetString(ctxRequestID)})
		return
	}
	u, err := a.users.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user", "request_id": c.GetString(ctxRequestID)})
			return
		}
		a.fail(c, err)
		c.Abort()
		return
	}
	c.Set(ctxUser, *u)
	c.Next()
}

func caller(c *gin.Context) users.User {
	u, _ := c.Get(ctxUser)
	out, _ := u.(users.User)
	return out
}

// fail writes err with the status of its business category. Unknown errors are logged and hidden.
func (a *API) fail(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(),
			"request_id", c.GetString(ctxRequestID), "err", err)
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg, "request_id": c.GetString(ctxRequestID)})
}

func (a *API) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "request_id": c.GetString(ctxRequestID)})
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

func sendXLSX(c *gin.Context, name string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, strings.ReplaceAll(name, `"`, "")))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
