package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/contexts"
	"github.com/looplj/memvault/internal/keyring"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/server/biz"
)

type TopicHandlersParams struct {
	fx.In

	TopicService *biz.TopicService
}

func NewTopicHandlers(params TopicHandlersParams) *TopicHandlers {
	return &TopicHandlers{
		TopicService: params.TopicService,
	}
}

type TopicHandlers struct {
	TopicService *biz.TopicService
}

// requestIdentity pulls the agent binding set by the auth middleware.
func requestIdentity(c *gin.Context) (tenantID int, userID string, err error) {
	ctx := c.Request.Context()

	tenantID, ok := contexts.GetTenantID(ctx)
	if !ok {
		return 0, "", errors.New("missing tenant binding")
	}

	userID, _ = contexts.GetUserID(ctx)

	return tenantID, userID, nil
}

// keyCarrier returns the request's content-key carrier, or nil when the
// header was absent. Handlers that require content pass the nil through
// and let the service report ErrKeyMissing.
func keyCarrier(c *gin.Context) *keyring.Carrier {
	carrier, _ := contexts.GetKeyCarrier(c.Request.Context())
	return carrier
}

type CreateTopicRequest struct {
	Content       objects.TopicContent `json:"content"`
	Embedding     []float32            `json:"embedding,omitempty"`
	Importance    float64              `json:"importance,omitempty"`
	RawExtraction string               `json:"raw_extraction,omitempty"`
}

func (h *TopicHandlers) Create(c *gin.Context) {
	tenantID, userID, err := requestIdentity(c)
	if err != nil {
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	var req CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("invalid request format"))
		return
	}

	topic, err := h.TopicService.Create(c.Request.Context(), keyCarrier(c), tenantID, biz.CreateTopicInput{
		UserID:        userID,
		Content:       req.Content,
		Embedding:     req.Embedding,
		Importance:    req.Importance,
		RawExtraction: req.RawExtraction,
	})
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, topic)
}

func (h *TopicHandlers) Get(c *gin.Context) {
	tenantID, _, err := requestIdentity(c)
	if err != nil {
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	id, err := pathID(c, "id")
	if err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	topic, err := h.TopicService.ReadDecrypted(c.Request.Context(), keyCarrier(c), tenantID, id)
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, topic)
}

type UpdateTopicRequest struct {
	Content    *objects.TopicContent `json:"content,omitempty"`
	Embedding  []float32             `json:"embedding,omitempty"`
	Importance *float64              `json:"importance,omitempty"`
}

func (h *TopicHandlers) Update(c *gin.Context) {
	tenantID, _, err := requestIdentity(c)
	if err != nil {
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	id, err := pathID(c, "id")
	if err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	var req UpdateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("invalid request format"))
		return
	}

	topic, err := h.TopicService.Update(c.Request.Context(), keyCarrier(c), tenantID, id, biz.UpdateTopicInput{
		Content:    req.Content,
		Embedding:  req.Embedding,
		Importance: req.Importance,
	})
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, topic)
}

func (h *TopicHandlers) Delete(c *gin.Context) {
	tenantID, _, err := requestIdentity(c)
	if err != nil {
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	id, err := pathID(c, "id")
	if err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.TopicService.SoftDelete(c.Request.Context(), tenantID, id); err != nil {
		JSONDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// List returns structural summaries. Titles are present only when the
// request carried a key.
func (h *TopicHandlers) List(c *gin.Context) {
	tenantID, userID, err := requestIdentity(c)
	if err != nil {
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	if q := c.Query("user_id"); q != "" {
		userID = q
	}

	summaries, err := h.TopicService.List(c.Request.Context(), keyCarrier(c), tenantID, userID)
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"topics": summaries})
}

type SearchTopicsRequest struct {
	Embedding []float32 `json:"embedding" binding:"required"`
	Limit     int       `json:"limit,omitempty"`
}

func (h *TopicHandlers) Search(c *gin.Context) {
	tenantID, _, err := requestIdentity(c)
	if err != nil {
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	var req SearchTopicsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("invalid request format"))
		return
	}

	hits, err := h.TopicService.Search(c.Request.Context(), keyCarrier(c), tenantID, req.Embedding, req.Limit)
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

type AddEdgeRequest struct {
	DstID  int              `json:"dst_id" binding:"required"`
	Kind   objects.EdgeKind `json:"kind"   binding:"required"`
	Weight float64          `json:"weight"`
}

func (h *TopicHandlers) AddEdge(c *gin.Context) {
	tenantID, _, err := requestIdentity(c)
	if err != nil {
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	srcID, err := pathID(c, "id")
	if err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	var req AddEdgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("invalid request format"))
		return
	}

	if !req.Kind.Valid() || req.DstID == srcID {
		JSONError(c, http.StatusBadRequest, errors.New("invalid edge"))
		return
	}

	edge, err := h.TopicService.AddEdge(c.Request.Context(), tenantID, srcID, req.DstID, req.Kind, req.Weight)
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, edge)
}

func (h *TopicHandlers) Neighbors(c *gin.Context) {
	tenantID, _, err := requestIdentity(c)
	if err != nil {
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	id, err := pathID(c, "id")
	if err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	edges, err := h.TopicService.Neighbors(c.Request.Context(), tenantID, id)
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"edges": edges})
}
