package resources

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/middleware"
	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/internal/realtime"
	"github.com/congregate/backend/pkg/response"
	"github.com/congregate/backend/pkg/storage"
	"github.com/congregate/backend/pkg/validation"
)

// Store is the persistence the resources handler needs.
type Store interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Resource, error)
	Create(ctx context.Context, r *models.Resource) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Resource, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ObjectStore is the object storage behind uploaded resources.
type ObjectStore interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	PresignExpire() time.Duration
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Handler handles resource library endpoints.
type Handler struct {
	store   Store
	objects ObjectStore
	roles   middleware.RoleLookup
	pub     realtime.Publisher
	logger  *zap.Logger
}

// NewHandler creates a resources handler. objects may be nil when S3 is not configured; link
// resources keep working.
func NewHandler(store Store, objects ObjectStore, roles middleware.RoleLookup, pub realtime.Publisher, logger *zap.Logger) *Handler {
	if pub == nil {
		pub = realtime.Discard
	}
	return &Handler{store: store, objects: objects, roles: roles, pub: pub, logger: logger}
}

// UploadURLRequest is the body for POST /tenants/:tenantId/resources/upload-url.
type UploadURLRequest struct {
	Filename string `json:"filename" binding:"required,nonblank"`
}

// CreateRequest is the body for POST /tenants/:tenantId/resources. Exactly one of Key and URL is set.
type CreateRequest struct {
	Title string  `json:"title"`
	Key   *string `json:"key"`
	URL   *string `json:"url"`
}

// List handles GET /tenants/:tenantId/resources.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.ListByTenant(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		h.logger.Error("list resources", zap.Error(err))
		response.Internal(c, "failed to list resources")
		return
	}
	response.OK(c, list)
}

// UploadURL handles POST /tenants/:tenantId/resources/upload-url: a presigned PUT under the tenant prefix.
func (h *Handler) UploadURL(c *gin.Context) {
	if h.objects == nil {
		response.ServiceUnavailable(c, "object storage not configured")
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	contentType, ok := storage.ValidateResourceFile(req.Filename)
	if !ok {
		response.BadRequest(c, "unsupported file type")
		return
	}
	key := storage.ResourceKey(middleware.TenantID(c).String(), req.Filename)
	url, err := h.objects.PresignUpload(c.Request.Context(), key, contentType)
	if err != nil {
		h.logger.Error("presign upload", zap.Error(err), zap.String("key", key))
		response.Internal(c, "failed to create upload url")
		return
	}
	response.OK(c, gin.H{
		"upload_url":   url,
		"key":          key,
		"content_type": contentType,
		"expires_in":   int(h.objects.PresignExpire().Seconds()),
	})
}

// Create handles POST /tenants/:tenantId/resources.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	tenantID := middleware.TenantID(c)
	res := &models.Resource{TenantID: tenantID, CreatedBy: middleware.UserID(c)}
	fe := validation.FieldErrors{}
	title, err := validation.Trimmed(req.Title)
	if err != nil {
		fe["title"] = validation.MsgRequired
	}
	res.Title = title
	key, link := validation.OptionalTrimmed(req.Key), validation.OptionalTrimmed(req.URL)
	switch {
	case key == nil && link == nil:
		fe["url"] = validation.MsgRequired
	case key != nil && link != nil:
		fe["key"] = validation.MsgInvalid
	case link != nil:
		if !validation.IsLink(*link) {
			fe["url"] = validation.MsgInvalidURL
		}
		res.URL = link
	default:
		ct, ok := storage.ValidateResourceFile(*key)
		if !ok || !storage.KeyBelongsToTenant(*key, tenantID.String()) {
			fe["key"] = validation.MsgInvalid
		}
		res.ObjectKey, res.ContentType = key, ct
	}
	if len(fe) > 0 {
		response.Invalid(c, fe)
		return
	}
	ctx := c.Request.Context()
	if res.ObjectKey != nil {
		if h.objects == nil {
			response.ServiceUnavailable(c, "object storage not configured")
			return
		}
		exists, err := h.objects.Exists(ctx, *res.ObjectKey)
		if err != nil {
			h.logger.Error("check uploaded object", zap.Error(err), zap.String("key", *res.ObjectKey))
			response.Internal(c, "failed to verify upload")
			return
		}
		if !exists {
			response.BadRequest(c, "object has not been uploaded")
			return
		}
	}
	h.save(c, res)
}

// Upload handles POST /tenants/:tenantId/resources/file: a multipart upload (fields: title, file)
// stored server-side for clients that cannot PUT to S3 directly.
func (h *Handler) Upload(c *gin.Context) {
	if h.objects == nil {
		response.ServiceUnavailable(c, "object storage not configured")
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file (form field: file)")
		return
	}
	if file.Size > storage.MaxResourceFileSize {
		response.BadRequest(c, "file size exceeds 25MB limit")
		return
	}
	contentType, ok := storage.ValidateResourceFile(file.Filename)
	if !ok {
		response.BadRequest(c, "unsupported file type")
		return
	}
	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = file.Filename
	}
	tenantID := middleware.TenantID(c)
	key := storage.ResourceKey(tenantID.String(), file.Filename)
	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file", zap.Error(err))
		response.Internal(c, "failed to read file")
		return
	}
	defer rc.Close()
	if err := h.objects.Upload(c.Request.Context(), key, contentType, rc, file.Size); err != nil {
		h.logger.Error("upload resource", zap.Error(err), zap.String("key", key))
		response.Internal(c, "failed to upload file to storage")
		return
	}
	h.save(c, &models.Resource{
		TenantID:    tenantID,
		Title:       title,
		ObjectKey:   &key,
		ContentType: contentType,
		CreatedBy:   middleware.UserID(c),
	})
}

func (h *Handler) save(c *gin.Context, res *models.Resource) {
	if err := h.store.Create(c.Request.Context(), res); err != nil {
		h.logger.Error("create resource", zap.Error(err), zap.String("tenant_id", res.TenantID.String()))
		response.FromError(c, err, "failed to create resource")
		return
	}
	h.pub.PublishChange(c.Request.Context(), res.TenantID, realtime.EntityResource, res.ID)
	response.Created(c, res)
}

// load resolves :resourceId and checks membership; with manage set, requires owner or admin.
func (h *Handler) load(c *gin.Context, manage bool) (*models.Resource, bool) {
	id, err := uuid.Parse(c.Param("resourceId"))
	if err != nil {
		response.BadRequest(c, "invalid resource id")
		return nil, false
	}
	ctx := c.Request.Context()
	res, err := h.store.GetByID(ctx, id)
	if err != nil {
		response.FromError(c, err, "failed to load resource")
		return nil, false
	}
	role, err := h.roles.Role(ctx, res.TenantID, middleware.UserID(c))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.Forbidden(c, "not a member of this tenant")
		} else {
			response.Internal(c, "failed to resolve tenant role")
		}
		return nil, false
	}
	if manage && role != models.TenantRoleOwner && role != models.TenantRoleAdmin {
		response.Forbidden(c, "insufficient permissions")
		return nil, false
	}
	return res, true
}

// DownloadURL handles GET /resources/:resourceId/download-url. Link resources return their URL.
func (h *Handler) DownloadURL(c *gin.Context) {
	res, ok := h.load(c, false)
	if !ok {
		return
	}
	if res.ObjectKey == nil {
		response.OK(c, gin.H{"url": *res.URL})
		return
	}
	if h.objects == nil {
		response.ServiceUnavailable(c, "object storage not configured")
		return
	}
	url, err := h.objects.PresignDownload(c.Request.Context(), *res.ObjectKey)
	if err != nil {
		h.logger.Error("presign download", zap.Error(err), zap.String("resource_id", res.ID.String()))
		response.Internal(c, "failed to create download url")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in": int(h.objects.PresignExpire().Seconds())})
}

// Delete handles DELETE /resources/:resourceId. The stored object goes too; a failed object
// delete is logged and leaves an orphan rather than failing the request.
func (h *Handler) Delete(c *gin.Context) {
	res, ok := h.load(c, true)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.store.Delete(ctx, res.ID); err != nil {
		response.FromError(c, err, "failed to delete resource")
		return
	}
	if res.ObjectKey != nil && h.objects != nil {
		if err := h.objects.Delete(ctx, *res.ObjectKey); err != nil {
			h.logger.Warn("delete resource object", zap.Error(err), zap.String("key", *res.ObjectKey))
		}
	}
	h.pub.PublishChange(ctx, res.TenantID, realtime.EntityResource, res.ID)
	response.NoContent(c)
}

// RegisterRoutes mounts resource routes. tenant is the /tenants/:tenantId group guarded by RequireTenantMember.
func (h *Handler) RegisterRoutes(api, tenant *gin.RouterGroup) {
	managers := middleware.RequireRole(models.TenantRoleOwner, models.TenantRoleAdmin)
	tenant.GET("/resources", h.List)
	tenant.POST("/resources", managers, h.Create)
	tenant.POST("/resources/upload-url", managers, h.UploadURL)
	tenant.POST("/resources/file", managers, h.Upload)

	api.GET("/resources/:resourceId/download-url", h.DownloadURL)
	api.DELETE("/resources/:resourceId", h.Delete)
}
