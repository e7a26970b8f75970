package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	paygate "github.com/nexfield-ai/paygate"
	"github.com/nexfield-ai/paygate/pkg/ginmw"
	"github.com/nexfield-ai/paygate/stream"
	"github.com/nexfield-ai/paygate/task"
)

// RouterConfig wires the HTTP surface together.
type RouterConfig struct {
	Registry *paygate.RequirementRegistry
	Verifier ginmw.Verifier
	// ResourceRootURL prefixes request paths in challenges.
	ResourceRootURL string
	Logger          *slog.Logger
}

// NewRouter builds the service's HTTP surface: the discovery document is
// open; submission and task protocol endpoints sit behind the payment gate.
func NewRouter(svc *Service, discovery *Discovery, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET(WellKnownPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, discovery.Card())
	})

	paid := router.Group("/", ginmw.Payment(cfg.Registry, cfg.Verifier, ginmw.Options{
		ResourceRootURL: cfg.ResourceRootURL,
		Logger:          logger,
	}))

	h := &handlers{svc: svc, discovery: discovery, logger: logger}
	paid.POST("/ask", h.ask)
	paid.POST("/ask/stream", h.askStream)
	paid.POST("/a2a", h.rpc)

	return router
}

type handlers struct {
	svc       *Service
	discovery *Discovery
	logger    *slog.Logger
}

// decodeSubmission validates the body against the discovery input schema
// and extracts the content and context id.
func (h *handlers) decodeSubmission(c *gin.Context) (content, contextID string, ok bool) {
	var input map[string]interface{}
	if err := json.NewDecoder(c.Request.Body).Decode(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
		return "", "", false
	}
	if err := h.discovery.ValidateInput(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	content, _ = input["content"].(string)
	contextID, _ = input["contextId"].(string)
	return content, contextID, true
}

func (h *handlers) ask(c *gin.Context) {
	content, contextID, ok := h.decodeSubmission(c)
	if !ok {
		return
	}

	result, err := h.svc.Ask(c.Request.Context(), content, contextID, ginmw.PayerFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) askStream(c *gin.Context) {
	content, contextID, ok := h.decodeSubmission(c)
	if !ok {
		return
	}

	events, _, err := h.svc.AskStream(c.Request.Context(), content, contextID, ginmw.PayerFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	sse, err := stream.NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := sse.Drain(events); err != nil {
		h.logger.Warn("stream consumer went away", "error", err)
	}
}

func (h *handlers) rpc(c *gin.Context) {
	var req RPCRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusOK, rpcError(nil, CodeParse, "malformed request: %v", err))
		return
	}
	c.JSON(http.StatusOK, h.svc.HandleRPC(c.Request.Context(), req, ginmw.PayerFrom(c)))
}

func (h *handlers) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, task.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUpstreamProducer):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
