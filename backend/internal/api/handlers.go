package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"graphclone/backend/internal/clone"
	"graphclone/backend/internal/record"
	"graphclone/backend/internal/schema"
	"graphclone/backend/internal/store"
	"graphclone/backend/internal/update"
	apperrors "graphclone/backend/pkg/errors"
)

// Handler serves the schema and record endpoints.
type Handler struct {
	store   store.Store
	cloner  *clone.Cloner
	applier *update.Applier
	logger  *zap.Logger
}

// NewHandler creates a handler. cloner and applier must write to s.
func NewHandler(s store.Store, cloner *clone.Cloner, applier *update.Applier, log *zap.Logger) *Handler {
	return &Handler{store: s, cloner: cloner, applier: applier, logger: log}
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r *Router) {
	r.GET("/schema", h.listTypes)
	r.GET("/schema/:type", h.describeType)

	records := r.Group("/records/:type")
	records.POST("", h.createRecord)
	records.GET("/:id", h.getRecord)
	records.PATCH("/:id", h.updateRecord)
	records.POST("/:id/clone", h.cloneRecord)
	records.GET("/:id/related/:field", h.listRelated)
}

func (h *Handler) listTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"types": h.store.Schema().Names()})
}

func (h *Handler) describeType(c *gin.Context) {
	s, err := h.store.Schema().JSONSchema(c.Param("type"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) createRecord(c *gin.Context) {
	var payload any
	if err := c.ShouldBindJSON(&payload); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	ctx := c.Request.Context()
	var out *record.Record
	err := h.store.WithTx(ctx, func(tx store.Store) error {
		rec, err := tx.New(ctx, c.Param("type"))
		if err != nil {
			return err
		}
		out, err = h.applier.In(tx).Update(ctx, rec, payload)
		return err
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.logger.Info("Record created", zap.String("type", out.Type), zap.String("id", out.ID))
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) getRecord(c *gin.Context) {
	rec, err := h.store.Get(c.Request.Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// updateRecord applies the body as a nested partial update. All nested
// writes commit together or not at all.
func (h *Handler) updateRecord(c *gin.Context) {
	var payload any
	if err := c.ShouldBindJSON(&payload); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	ctx := c.Request.Context()
	var out *record.Record
	err := h.store.WithTx(ctx, func(tx store.Store) error {
		rec, err := tx.Get(ctx, c.Param("type"), c.Param("id"))
		if err != nil {
			return err
		}
		out, err = h.applier.In(tx).Update(ctx, rec, payload)
		return err
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) cloneRecord(c *gin.Context) {
	ctx := c.Request.Context()
	src, err := h.store.Get(ctx, c.Param("type"), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	out, err := h.cloner.Clone(ctx, src)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) listRelated(c *gin.Context) {
	ctx := c.Request.Context()
	typeName := c.Param("type")

	f, err := h.store.Schema().Field(typeName, c.Param("field"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if f.Kind != schema.KindOneToMany {
		_ = c.Error(apperrors.NewUnsupportedRelation(typeName, f.Name, string(f.Kind)))
		return
	}

	parent, err := h.store.Get(ctx, typeName, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	children, err := h.store.Children(ctx, parent, f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if children == nil {
		children = []*record.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"items": children})
}
