// Package server provides the HTTP API for knowledged. It is a thin
// shell: authorization context comes from headers set by the fronting
// proxy, and all policy and scope enforcement happens in the core
// packages it calls.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/audit"
	"github.com/fyrsmithlabs/knowledged/internal/auth"
	"github.com/fyrsmithlabs/knowledged/internal/ingest"
	"github.com/fyrsmithlabs/knowledged/internal/rag"
	"github.com/fyrsmithlabs/knowledged/internal/repository"
)

// AuditHistory is implemented by sinks that can also serve reads, like
// the Postgres sink. The log sink cannot, and the endpoint 501s.
type AuditHistory interface {
	FindByTenant(ctx context.Context, tenantID string, q audit.HistoryQuery) ([]audit.Event, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	config   Config
	engine   *auth.Engine
	retrieve *rag.Engine
	pipeline *ingest.Pipeline
	docs     repository.DocumentRepository
	policies repository.PolicyRepository
	audit    audit.Sink
	history  AuditHistory
	logger   *zap.Logger
}

// NewServer creates the HTTP server and registers routes. history may
// be nil when the audit backend cannot serve reads.
func NewServer(
	cfg Config,
	engine *auth.Engine,
	retrieve *rag.Engine,
	pipeline *ingest.Pipeline,
	docs repository.DocumentRepository,
	policies repository.PolicyRepository,
	auditSink audit.Sink,
	history AuditHistory,
	logger *zap.Logger,
) (*Server, error) {
	if engine == nil || retrieve == nil || pipeline == nil {
		return nil, fmt.Errorf("engine, retrieval and pipeline are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditSink == nil {
		auditSink = audit.Nop{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		config:   cfg,
		engine:   engine,
		retrieve: retrieve,
		pipeline: pipeline,
		docs:     docs,
		policies: policies,
		audit:    auditSink,
		history:  history,
		logger:   logger.Named("server"),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/rag/search", s.handleRagSearch)
	v1.POST("/documents", s.handleIngest)
	v1.GET("/documents", s.handleListDocuments)
	v1.GET("/documents/:id", s.handleGetDocument)
	v1.DELETE("/documents/:id", s.handleDeleteDocument)
	v1.DELETE("/documents/:id/versions/:versionId", s.handleDeleteVersion)
	v1.POST("/policies/reload", s.handlePolicyReload)
	v1.GET("/audit", s.handleAuditHistory)
}

// authContext builds the caller's authorization context from the
// headers the fronting proxy sets after authenticating the request.
func authContext(c echo.Context) (auth.Context, error) {
	tenantID := c.Request().Header.Get("X-Tenant-ID")
	userID := c.Request().Header.Get("X-User-ID")
	if tenantID == "" || userID == "" {
		return auth.Context{}, echo.NewHTTPError(http.StatusUnauthorized, "missing tenant or user identity")
	}
	return auth.NewContext(
		tenantID,
		userID,
		splitHeader(c.Request().Header.Get("X-Roles")),
		splitHeader(c.Request().Header.Get("X-Tags")),
		c.Request().Header.Get("X-Department"),
		c.Request().Header.Get("X-Subdepartment"),
	), nil
}

func splitHeader(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// RagSearchRequest is the request body for POST /api/v1/rag/search.
type RagSearchRequest struct {
	Text     string       `json:"text"`
	Limit    int          `json:"limit,omitempty"`
	MinScore *float32     `json:"minScore,omitempty"`
	Filters  *rag.Filters `json:"filters,omitempty"`
}

// RagSearchResponse is the response body for POST /api/v1/rag/search.
type RagSearchResponse struct {
	Results []rag.Result `json:"results"`
}

func (s *Server) handleRagSearch(c echo.Context) error {
	actx, err := authContext(c)
	if err != nil {
		return err
	}

	var req RagSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if !s.engine.IsAllowed(actx, auth.PolicyRag, auth.ActionSearch, auth.Resource{}) {
		s.auditDenied(c, actx)
		return echo.NewHTTPError(http.StatusForbidden, "search denied by policy")
	}

	query := rag.FromAuthContext(req.Text, actx, req.Filters)
	if req.Limit > 0 {
		query.Limit = req.Limit
	}
	if req.MinScore != nil {
		query.MinScore = *req.MinScore
	}

	results, err := s.retrieve.Search(c.Request().Context(), actx.TenantID, actx.UserID, query)
	if err != nil {
		if errors.Is(err, rag.ErrInvalidQuery) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if errors.Is(err, rag.ErrEmbeddingUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "embedding provider unavailable")
		}
		s.logger.Error("rag search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	if results == nil {
		results = []rag.Result{}
	}
	return c.JSON(http.StatusOK, RagSearchResponse{Results: results})
}

// IngestRequest is the request body for POST /api/v1/documents.
type IngestRequest struct {
	DocumentID  string            `json:"documentId,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Content     string            `json:"content"`
	Format      string            `json:"format"`
	Tags        []string          `json:"tags,omitempty"`
	Scope       *auth.AccessScope `json:"accessScope,omitempty"`
	AccessRoles []string          `json:"accessRoles,omitempty"`
}

func (s *Server) handleIngest(c echo.Context) error {
	actx, err := authContext(c)
	if err != nil {
		return err
	}

	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	receipt, err := s.pipeline.Ingest(c.Request().Context(), actx, ingest.Input{
		DocumentID:  req.DocumentID,
		Name:        req.Name,
		Description: req.Description,
		Content:     req.Content,
		Format:      req.Format,
		Tags:        req.Tags,
		Scope:       req.Scope,
		AccessRoles: req.AccessRoles,
	})
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidInput) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		s.logger.Error("ingestion failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
	}
	return c.JSON(http.StatusCreated, receipt)
}

func (s *Server) handleListDocuments(c echo.Context) error {
	actx, err := authContext(c)
	if err != nil {
		return err
	}

	docs, err := s.docs.ListDocuments(c.Request().Context(), actx.TenantID, 50, 0)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}
	return c.JSON(http.StatusOK, docs)
}

func (s *Server) handleGetDocument(c echo.Context) error {
	actx, err := authContext(c)
	if err != nil {
		return err
	}

	doc, err := s.docs.GetDocument(c.Request().Context(), actx.TenantID, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		s.logger.Error("get document failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "get failed")
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	actx, err := authContext(c)
	if err != nil {
		return err
	}

	if err := s.pipeline.DeleteDocument(c.Request().Context(), actx, c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		s.logger.Error("delete document failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteVersion(c echo.Context) error {
	actx, err := authContext(c)
	if err != nil {
		return err
	}

	if err := s.pipeline.DeleteVersion(c.Request().Context(), actx, c.Param("id"), c.Param("versionId")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "version not found")
		}
		s.logger.Error("delete version failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// handlePolicyReload reloads the engine's policy snapshot from the
// policy store. A failed reload keeps the previous snapshot.
func (s *Server) handlePolicyReload(c echo.Context) error {
	policies, err := s.policies.ListEnabled(c.Request().Context())
	if err != nil {
		s.logger.Error("loading policies failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "policy store unavailable")
	}
	if err := s.engine.Reload(policies); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"policies": len(policies)})
}

func (s *Server) handleAuditHistory(c echo.Context) error {
	actx, err := authContext(c)
	if err != nil {
		return err
	}
	if s.history == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "audit backend does not support reads")
	}

	events, err := s.history.FindByTenant(c.Request().Context(), actx.TenantID, audit.HistoryQuery{
		Action: c.QueryParam("action"),
		UserID: c.QueryParam("user"),
	})
	if err != nil {
		s.logger.Error("audit history failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "audit history failed")
	}
	if events == nil {
		events = []audit.Event{}
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) auditDenied(c echo.Context, actx auth.Context) {
	event := audit.NewEvent(actx.TenantID, actx.UserID, audit.ActionPolicyDecision)
	event.Resource = "rag:search"
	event.Decision = audit.DecisionDeny
	s.audit.Log(c.Request().Context(), event)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
