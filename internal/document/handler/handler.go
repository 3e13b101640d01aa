// Package handler exposes the document service over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/doctrack/doctrack/internal/controlnumber"
	"github.com/doctrack/doctrack/internal/document"
	"github.com/doctrack/doctrack/internal/document/routing"
	"github.com/doctrack/doctrack/internal/document/service"
	"github.com/doctrack/doctrack/internal/models"
	"github.com/doctrack/doctrack/pkg/logger"
	"github.com/doctrack/doctrack/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// Service is the subset of the document service used by the routes.
type Service interface {
	Create(ctx context.Context, actor models.Principal, in document.CreateInput) (*document.Document, error)
	Get(ctx context.Context, viewer models.Principal, id string) (*document.Document, error)
	List(ctx context.Context, viewer models.Principal, view routing.View) ([]*document.Document, error)
	Receive(ctx context.Context, actor models.Principal, id string) (*document.Document, error)
	Forward(ctx context.Context, actor models.Principal, id, destination, remarks string) (*document.Document, error)
	Return(ctx context.Context, actor models.Principal, id, reason string) (*document.Document, error)
	Complete(ctx context.Context, actor models.Principal, id, remarks string) (*document.Document, error)
	Archive(ctx context.Context, actor models.Principal, id string) (*document.Document, error)
	UpdateRemarks(ctx context.Context, actor models.Principal, id, remarks string) (*document.Document, error)
	NextNumber(ctx context.Context, actor models.Principal) (string, error)
	Collisions(ctx context.Context, actor models.Principal) ([]controlnumber.Collision, error)
	Purge(ctx context.Context, actor models.Principal, cutoff time.Time) (service.PurgeResult, error)
	PurgePreview(ctx context.Context, actor models.Principal, cutoff time.Time) (service.PurgeResult, error)
}

// RegisterDocumentRoutes mounts the document API on rg. rg must already
// run the auth middleware.
func RegisterDocumentRoutes(rg *gin.RouterGroup, svc Service) {
	docs := rg.Group("/documents")
	docs.POST("", create(svc))
	docs.GET("", list(svc))
	docs.GET("/:id", get(svc))
	docs.POST("/:id/receive", receive(svc))
	docs.POST("/:id/forward", forward(svc))
	docs.POST("/:id/return", returnDoc(svc))
	docs.POST("/:id/complete", complete(svc))
	docs.POST("/:id/archive", archive(svc))
	docs.PATCH("/:id/remarks", remarks(svc))

	rg.GET("/control-numbers/next", nextNumber(svc))

	admin := rg.Group("/admin")
	admin.GET("/collisions", collisions(svc))
	admin.POST("/purge", purge(svc))
}

// writeError maps service errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	var te *document.TransitionError
	switch {
	case errors.As(err, &te):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid transition", "action": te.Action, "reason": te.Reason})
	case errors.Is(err, document.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, document.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, document.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, document.ErrCollaboratorUnavailable):
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable, retry later"})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func principal(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	}
	return p, ok
}

func create(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		var in document.CreateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d, err := svc.Create(c.Request.Context(), p, in)
		if err != nil {
			var te *document.TransitionError
			if errors.As(err, &te) {
				c.JSON(http.StatusBadRequest, gin.H{"error": te.Reason})
				return
			}
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, d)
	}
}

func list(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		view := routing.ParseView(c.Query("view"))
		docs, err := svc.List(c.Request.Context(), p, view)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, docs)
	}
}

func get(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		d, err := svc.Get(c.Request.Context(), p, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

// act runs a transition whose request body is bound into req.
func act[T any](c *gin.Context, fn func(ctx context.Context, p models.Principal, id string, req T) (*document.Document, error)) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req T
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	d, err := fn(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type noBody struct{}

type forwardRequest struct {
	Destination string `json:"destination"`
	Remarks     string `json:"remarks"`
}

type returnRequest struct {
	Reason string `json:"reason"`
}

type remarksRequest struct {
	Remarks string `json:"remarks"`
}

func receive(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		act(c, func(ctx context.Context, p models.Principal, id string, _ noBody) (*document.Document, error) {
			return svc.Receive(ctx, p, id)
		})
	}
}

func forward(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		act(c, func(ctx context.Context, p models.Principal, id string, req forwardRequest) (*document.Document, error) {
			return svc.Forward(ctx, p, id, req.Destination, req.Remarks)
		})
	}
}

func returnDoc(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		act(c, func(ctx context.Context, p models.Principal, id string, req returnRequest) (*document.Document, error) {
			return svc.Return(ctx, p, id, req.Reason)
		})
	}
}

func complete(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		act(c, func(ctx context.Context, p models.Principal, id string, req remarksRequest) (*document.Document, error) {
			return svc.Complete(ctx, p, id, req.Remarks)
		})
	}
}

func archive(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		act(c, func(ctx context.Context, p models.Principal, id string, _ noBody) (*document.Document, error) {
			return svc.Archive(ctx, p, id)
		})
	}
}

func remarks(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		act(c, func(ctx context.Context, p models.Principal, id string, req remarksRequest) (*document.Document, error) {
			return svc.UpdateRemarks(ctx, p, id, req.Remarks)
		})
	}
}

func nextNumber(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		ref, err := svc.NextNumber(c.Request.Context(), p)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"referenceNumber": ref})
	}
}

func collisions(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		out, err := svc.Collisions(c.Request.Context(), p)
		if err != nil {
			writeError(c, err)
			return
		}
		if out == nil {
			out = []controlnumber.Collision{}
		}
		c.JSON(http.StatusOK, out)
	}
}

func purge(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		var req struct {
			Before time.Time `json:"before" binding:"required"`
			DryRun bool      `json:"dryRun"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "before (RFC 3339 timestamp) is required"})
			return
		}
		run := svc.Purge
		if req.DryRun {
			run = svc.PurgePreview
		}
		res, err := run(c.Request.Context(), p, req.Before)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
