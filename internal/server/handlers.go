package server

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cms-engine/internal/ai"
	"github.com/cms-engine/internal/chat"
	"github.com/cms-engine/internal/embedding"
	"github.com/cms-engine/internal/models"
	"github.com/cms-engine/internal/review"
	"github.com/cms-engine/internal/storage"
)

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		badRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// ---- Pipeline ----

func (s *Server) handleIngestRun(c *gin.Context) {
	var req struct {
		SourceID *uint `json:"source_id"`
	}
	// Body is optional: no body means fetch all sources
	_ = c.ShouldBindJSON(&req)

	var (
		result interface{}
		err    error
	)
	if req.SourceID != nil {
		result, err = s.deps.Ingest.RunSource(c.Request.Context(), *req.SourceID)
	} else {
		result, err = s.deps.Ingest.Run(c.Request.Context())
	}
	if err != nil {
		internalError(c, err.Error())
		return
	}
	respondOK(c, result)
}

func (s *Server) handleEmbeddingIngest(c *gin.Context) {
	var req struct {
		PostID uint `json:"post_id" binding:"required"`
		Force  bool `json:"force"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := s.deps.Ingestor.Ingest(c.Request.Context(), req.PostID, req.Force)
	if err != nil {
		switch {
		case errors.Is(err, embedding.ErrNotPublished):
			badRequest(c, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			notFound(c, "post not found")
		default:
			internalError(c, err.Error())
		}
		return
	}
	respondOK(c, result)
}

func (s *Server) handleSearch(c *gin.Context) {
	var req struct {
		Query string `json:"query" binding:"required"`
		Limit int    `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	matches, err := s.deps.Retriever.Search(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		internalError(c, err.Error())
		return
	}
	respondOK(c, matches)
}

func (s *Server) handleChat(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message" binding:"required"`
		History   []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"history"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	history := make([]ai.Turn, 0, len(req.History))
	for _, h := range req.History {
		history = append(history, ai.Turn{Role: h.Role, Content: h.Content})
	}

	reply, err := s.deps.Chat.Respond(c.Request.Context(), req.SessionID, req.Message, history)
	if err != nil {
		if errors.Is(err, chat.ErrMessageTooLong) {
			badRequest(c, err.Error())
			return
		}
		internalError(c, err.Error())
		return
	}
	respondOK(c, gin.H{"reply": reply})
}

func (s *Server) handleTranslate(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		Language string `json:"language" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	tr, err := s.deps.Translate.Translate(c.Request.Context(), id, req.Language)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "post not found")
			return
		}
		internalError(c, err.Error())
		return
	}
	respondOK(c, tr)
}

// ---- Review workflow ----

func (s *Server) handleListImports(c *gin.Context) {
	filter := storage.DefaultImportFilter()
	if st := c.Query("status"); st != "" {
		status := models.ImportStatus(st)
		filter.Status = &status
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	imports, err := s.deps.Repository.ListImports(c.Request.Context(), filter)
	if err != nil {
		internalError(c, err.Error())
		return
	}
	respondOK(c, imports)
}

func (s *Server) handleApproveImport(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	post, err := s.deps.Review.Approve(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrInvalidTransition):
			badRequest(c, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			notFound(c, "import not found")
		default:
			internalError(c, err.Error())
		}
		return
	}
	respondOK(c, post)
}

func (s *Server) handleRejectImport(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.deps.Review.Reject(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, review.ErrInvalidTransition):
			badRequest(c, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			notFound(c, "import not found")
		default:
			internalError(c, err.Error())
		}
		return
	}
	respondOK(c, gin.H{"status": models.ImportStatusRejected})
}

func (s *Server) handleDeleteImport(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.deps.Review.Delete(c.Request.Context(), id); err != nil {
		internalError(c, err.Error())
		return
	}
	respondOK(c, gin.H{"deleted": id})
}

// ---- Feed sources ----

func (s *Server) handleListSources(c *gin.Context) {
	sources, err := s.deps.Repository.ListSources(c.Request.Context(), false)
	if err != nil {
		internalError(c, err.Error())
		return
	}
	respondOK(c, sources)
}

func (s *Server) handleCreateSource(c *gin.Context) {
	var source models.FeedSource
	if err := c.ShouldBindJSON(&source); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := source.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.deps.Repository.CreateSource(c.Request.Context(), &source); err != nil {
		internalError(c, err.Error())
		return
	}
	respondCreated(c, source)
}

func (s *Server) handleUpdateSource(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	source, err := s.deps.Repository.GetSourceByID(c.Request.Context(), id)
	if err != nil {
		notFound(c, "source not found")
		return
	}

	var req models.FeedSource
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	source.Name = req.Name
	source.URL = req.URL
	source.CategoryID = req.CategoryID
	source.IsActive = req.IsActive
	source.FetchIntervalMinutes = req.FetchIntervalMinutes
	if err := source.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.deps.Repository.UpdateSource(c.Request.Context(), source); err != nil {
		internalError(c, err.Error())
		return
	}
	respondOK(c, source)
}

func (s *Server) handleDeleteSource(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.deps.Repository.DeleteSource(c.Request.Context(), id); err != nil {
		internalError(c, err.Error())
		return
	}
	respondOK(c, gin.H{"deleted": id})
}

// ---- Posts (public read) ----

func (s *Server) handleListPosts(c *gin.Context) {
	filter := storage.DefaultPostFilter()
	published := models.PostStatusPublished
	filter.Status = &published
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	posts, err := s.deps.Repository.ListPosts(c.Request.Context(), filter)
	if err != nil {
		internalError(c, err.Error())
		return
	}
	respondOK(c, posts)
}

func (s *Server) handleGetPost(c *gin.Context) {
	// Accept either a numeric id or a slug
	var (
		post *models.Post
		err  error
	)
	if id, convErr := strconv.ParseUint(c.Param("id"), 10, 32); convErr == nil {
		post, err = s.deps.Repository.GetPostByID(c.Request.Context(), uint(id))
	} else {
		post, err = s.deps.Repository.GetPostBySlug(c.Request.Context(), c.Param("id"))
	}
	if err != nil {
		notFound(c, "post not found")
		return
	}
	respondOK(c, post)
}

// ---- Contact & analytics ----

func (s *Server) handleContact(c *gin.Context) {
	var msg models.ContactMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		badRequest(c, err.Error())
		return
	}
	if msg.Name == "" || msg.Email == "" || msg.Body == "" {
		badRequest(c, "name, email and body are required")
		return
	}
	if err := s.deps.Repository.CreateContactMessage(c.Request.Context(), &msg); err != nil {
		internalError(c, err.Error())
		return
	}
	respondCreated(c, gin.H{"id": msg.ID})
}

func (s *Server) handleTrack(c *gin.Context) {
	var event models.TrackingEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		badRequest(c, err.Error())
		return
	}
	if event.EventType == "" {
		badRequest(c, "event_type is required")
		return
	}
	if err := s.deps.Repository.CreateTrackingEvent(c.Request.Context(), &event); err != nil {
		internalError(c, err.Error())
		return
	}
	respondCreated(c, gin.H{"id": event.ID})
}

func (s *Server) handleListContacts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	msgs, err := s.deps.Repository.ListContactMessages(c.Request.Context(), limit, offset)
	if err != nil {
		internalError(c, err.Error())
		return
	}
	respondOK(c, msgs)
}

// ---- Settings ----

func (s *Server) handleGetSetting(c *gin.Context) {
	value, err := s.deps.Settings.GetOrRefresh(c.Request.Context(), c.Param("key"))
	if err != nil {
		internalError(c, err.Error())
		return
	}
	respondOK(c, gin.H{"key": c.Param("key"), "value": value})
}

func (s *Server) handlePutSetting(c *gin.Context) {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.deps.Settings.Set(c.Request.Context(), c.Param("key"), req.Value); err != nil {
		internalError(c, err.Error())
		return
	}
	respondOK(c, gin.H{"key": c.Param("key"), "value": req.Value})
}
