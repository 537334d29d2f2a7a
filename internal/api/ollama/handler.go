package ollama

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liliang-cn/noise/internal/domain"
	"github.com/liliang-cn/noise/internal/gateway"
)

// UnreachableMessage is the error body sent when the backend cannot be contacted
const UnreachableMessage = "Failed to reach Ollama. Is it running?"

// Handler exposes the inference backend proxy
type Handler struct {
	proxy  *gateway.Proxy
	logger *zap.Logger
}

// NewHandler creates a new proxy handler
func NewHandler(proxy *gateway.Proxy, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{proxy: proxy, logger: logger.Named("ollama")}
}

// RegisterRoutes registers proxy routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/models", h.ListModels)
	r.GET("/tags", h.ListModels)
	r.POST("/chat", h.Chat)
}

// ListModels relays the backend's model list
func (h *Handler) ListModels(c *gin.Context) {
	status, body, err := h.proxy.ListModels(c.Request.Context())
	if domain.IsCallerAborted(err) {
		c.Abort()
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": UnreachableMessage})
		return
	}

	c.Data(status, "application/json", body)
}

// Chat relays a chat request, streaming the backend's answer back
func (h *Handler) Chat(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidRequest.Error()})
		return
	}

	outcome, err := h.proxy.StreamChat(c.Request.Context(), body, c.Writer)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": UnreachableMessage})
		return
	}

	h.logger.Debug("chat relay finished", zap.Stringer("outcome", outcome))
}
