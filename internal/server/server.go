// Package server exposes the curation pipeline over HTTP.
package server

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noesislabs/noesis/internal/core"
	"github.com/noesislabs/noesis/internal/core/model"
	"github.com/noesislabs/noesis/internal/store"
)

const (
	contradictionMinEntries = 2
	contradictionMaxEntries = 100
	rawTextMaxLen           = 50000
	recentMaxLimit          = 50
)

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	UserForToken(token string) (string, bool)
}

// StaticTokens authenticates against a fixed token-to-user map from config.
type StaticTokens map[string]string

func (s StaticTokens) UserForToken(token string) (string, bool) {
	userID, ok := s[token]
	return userID, ok
}

type Options struct {
	Auth              Authenticator
	RateLimitMax      int
	RateLimitWindow   time.Duration
	RecentDefaultSize int
	Mode              string // gin mode
}

type Server struct {
	router  *gin.Engine
	store   store.Store
	curator *core.Curator
	auth    Authenticator
	limiter *RateLimiter
	opts    Options
	logger  *zap.Logger
}

func New(st store.Store, curator *core.Curator, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.RecentDefaultSize <= 0 {
		opts.RecentDefaultSize = 6
	}

	s := &Server{
		router:  gin.New(),
		store:   st,
		curator: curator,
		auth:    opts.Auth,
		limiter: NewRateLimiter(),
		opts:    opts,
		logger:  logger,
	}
	s.router.Use(gin.Recovery(), s.requestLog())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api", s.authenticate())
	api.POST("/distill", s.handleDistill)
	api.POST("/entries", s.handleCreateEntry)
	api.GET("/entries", s.handleListEntries)
	api.PATCH("/entries/:id", s.handleUpdateEntry)
	api.DELETE("/entries/:id", s.handleDeleteEntry)
	api.POST("/entries/:id/favorite", s.handleToggleFavorite)
	api.GET("/stats", s.handleStats)
	api.POST("/contradictions", s.rateLimit("contradictions"), s.handleAnalyzeContradictions)
	api.GET("/contradictions/recent", s.handleRecentContradictions)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			fail(c, CodeUnauthorized, "missing bearer token")
			return
		}
		userID, ok := s.auth.UserForToken(token)
		if !ok {
			fail(c, CodeUnauthorized, "invalid token")
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

func (s *Server) rateLimit(namespace string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.RateLimitMax <= 0 {
			c.Next()
			return
		}
		key := userID(c) + "|" + c.ClientIP()
		ok, retryAfter := s.limiter.Allow(namespace, key, s.opts.RateLimitMax, s.opts.RateLimitWindow)
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			fail(c, CodeRateLimited, "too many requests, slow down")
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString("userID")
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type distillRequest struct {
	RawText    string `json:"rawText"`
	SourceType string `json:"sourceType"`
	YouTubeURL string `json:"youtubeUrl"`
}

func (s *Server) handleDistill(c *gin.Context) {
	var req distillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, CodeBadRequest, "invalid request body")
		return
	}
	sourceType := model.SourceType(req.SourceType)
	if !sourceType.Valid() {
		fail(c, CodeValidationFailed, fmt.Sprintf("unsupported sourceType: %q", req.SourceType))
		return
	}
	if req.RawText == "" && req.YouTubeURL == "" {
		fail(c, CodeValidationFailed, "either rawText or youtubeUrl is required")
		return
	}
	if len(req.RawText) > rawTextMaxLen {
		fail(c, CodeValidationFailed, fmt.Sprintf("rawText exceeds %d characters", rawTextMaxLen))
		return
	}

	distilled, err := s.curator.Distill(c.Request.Context(), core.DistillRequest{
		RawText:    req.RawText,
		SourceType: sourceType,
		YouTubeURL: req.YouTubeURL,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"distilled": distilled})
}

type createEntryRequest struct {
	ID          string                 `json:"id"`
	SourceType  string                 `json:"sourceType"`
	Author      string                 `json:"author"`
	OriginalURL string                 `json:"originalUrl"`
	RawText     string                 `json:"rawText"`
	UserNotes   string                 `json:"userNotes"`
	Distilled   model.DistilledContent `json:"distilled"`
}

// handleCreateEntry saves an already-distilled entry. Clients that ran the
// distillation earlier (or edited its output) use this instead of /distill.
func (s *Server) handleCreateEntry(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, CodeBadRequest, "invalid request body")
		return
	}
	sourceType := model.SourceType(req.SourceType)
	if !sourceType.Valid() {
		fail(c, CodeValidationFailed, fmt.Sprintf("unsupported sourceType: %q", req.SourceType))
		return
	}
	if len(req.Distilled.CoreIdeas) == 0 {
		fail(c, CodeValidationFailed, "distilled.core_ideas must not be empty")
		return
	}
	if err := req.Distilled.Validate(); err != nil {
		fail(c, CodeValidationFailed, err.Error())
		return
	}

	entry := model.KnowledgeEntry{
		ID:          req.ID,
		UserID:      userID(c),
		SourceType:  sourceType,
		Author:      req.Author,
		OriginalURL: req.OriginalURL,
		RawText:     req.RawText,
		Distilled:   req.Distilled,
		UserNotes:   req.UserNotes,
		CreatedAt:   time.Now().UTC(),
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := s.store.SaveEntry(c.Request.Context(), entry); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleListEntries(c *gin.Context) {
	filter := core.EntryFilter{
		Search:         c.Query("search"),
		SourceType:     model.SourceType(c.Query("source")),
		ShowLowQuality: c.Query("showLowQuality") == "true",
	}
	if raw := c.Query("minQuality"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 100 {
			fail(c, CodeValidationFailed, "minQuality must be a number between 0 and 100")
			return
		}
		filter.MinQuality = v
	}
	if raw := c.Query("tags"); raw != "" {
		filter.Tags = strings.Split(raw, ",")
	}
	page, ok := intQuery(c, "page", 1, 1000000)
	if !ok {
		return
	}
	pageSize, ok := intQuery(c, "pageSize", 1, 100)
	if !ok {
		return
	}

	entries, err := s.store.ListEntries(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, core.FilterEntries(entries, filter, page, pageSize))
}

// intQuery parses an optional positive integer query param; on a bad value it
// writes the error response and reports false.
func intQuery(c *gin.Context, name string, min, max int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		fail(c, CodeValidationFailed, fmt.Sprintf("%s must be an integer between %d and %d", name, min, max))
		return 0, false
	}
	return n, true
}

type updateEntryRequest struct {
	IsFavorite *bool   `json:"isFavorite"`
	UserNotes  *string `json:"userNotes"`
}

func (s *Server) handleUpdateEntry(c *gin.Context) {
	var req updateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, CodeBadRequest, "invalid request body")
		return
	}
	if req.IsFavorite == nil && req.UserNotes == nil {
		fail(c, CodeValidationFailed, "nothing to update")
		return
	}

	entry, err := s.store.UpdateEntry(c.Request.Context(), userID(c), c.Param("id"), store.EntryUpdate{
		IsFavorite: req.IsFavorite,
		UserNotes:  req.UserNotes,
	})
	if err != nil {
		s.storeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(c *gin.Context) {
	if err := s.store.DeleteEntry(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.storeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleToggleFavorite(c *gin.Context) {
	entry, err := s.store.ToggleFavorite(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.storeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type analyzeRequest struct {
	EntryIDs []string `json:"entryIds"`
}

func (s *Server) handleAnalyzeContradictions(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, CodeBadRequest, "invalid request body")
		return
	}
	if msg, ok := validateEntryIDs(req.EntryIDs); !ok {
		fail(c, CodeValidationFailed, msg)
		return
	}

	result, err := s.curator.AnalyzeContradictions(c.Request.Context(), userID(c), req.EntryIDs)
	if err != nil {
		if errors.Is(err, core.ErrEntriesInaccessible) {
			fail(c, CodeForbidden, err.Error())
			return
		}
		failErr(c, err)
		return
	}
	contradictions := result.Contradictions
	if contradictions == nil {
		contradictions = []model.Contradiction{}
	}
	c.JSON(http.StatusOK, gin.H{
		"contradictions": contradictions,
		"persistence": gin.H{
			"created": result.Created,
			"skipped": result.Skipped,
			"dropped": result.Dropped,
		},
		"groupsFailed": result.GroupsFailed,
	})
}

func validateEntryIDs(ids []string) (string, bool) {
	if len(ids) < contradictionMinEntries {
		return fmt.Sprintf("at least %d entry ids are required", contradictionMinEntries), false
	}
	if len(ids) > contradictionMaxEntries {
		return fmt.Sprintf("at most %d entry ids are allowed", contradictionMaxEntries), false
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return "entry ids must be non-empty", false
		}
		if seen[id] {
			return fmt.Sprintf("duplicate entry id: %s", id), false
		}
		seen[id] = true
	}
	return "", true
}

func (s *Server) handleRecentContradictions(c *gin.Context) {
	limit := s.opts.RecentDefaultSize
	if n, ok := intQuery(c, "limit", 1, recentMaxLimit); !ok {
		return
	} else if n > 0 {
		limit = n
	}

	insights, err := s.store.RecentContradictions(c.Request.Context(), userID(c), limit)
	if err != nil {
		failErr(c, err)
		return
	}
	if insights == nil {
		insights = []model.ContradictionInsight{}
	}
	c.JSON(http.StatusOK, gin.H{"contradictions": insights})
}

func (s *Server) storeErr(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		fail(c, CodeNotFound, "entry not found")
		return
	}
	failErr(c, err)
}
