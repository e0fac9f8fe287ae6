package main

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mrhapile/dotnet-bridge/router"
)

// RouteRequest is the JSON body of POST /route.
type RouteRequest struct {
	Controller string `json:"controller" binding:"required"`
	Action     string `json:"action" binding:"required"`
	Data       any    `json:"data,omitempty"`
}

// ErrorResponse represents an error in JSON format.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server exposes a bridge over HTTP.
type Server struct {
	bridge  router.Processor
	client  *router.Client
	maxBody int64
	log     *zap.Logger
}

// NewServer creates a Server forwarding to bridge.
func NewServer(bridge router.Processor, maxBody int64, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		bridge:  bridge,
		client:  router.New(bridge),
		maxBody: maxBody,
		log:     log,
	}
}

// Register mounts the endpoints on r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/healthz", s.handleHealthz)
	r.POST("/process", s.handleProcess)
	r.POST("/route", s.handleRoute)
}

// Handler returns a gin engine serving the endpoints.
func (s *Server) Handler() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.HandleMethodNotAllowed = true
	engine.NoMethod(func(c *gin.Context) {
		writeError(c, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.Register(engine)
	return engine
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleProcess forwards the raw body to the bridge and returns the raw
// response text.
func (s *Server) handleProcess(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(c, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}

	resp, err := s.bridge.ProcessRequest(string(body))
	if err != nil {
		s.log.Error("bridge call failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(resp))
}

// handleRoute sends a controller/action call through the envelope client.
//
// Status codes:
//   - 200: envelope without error message
//   - 400: malformed JSON or invalid names
//   - 422: envelope carrying a managed error message
//   - 502: response was not an envelope
//   - 500: bridge failure
func (s *Server) handleRoute(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if !isValidRouteName(req.Controller) || !isValidRouteName(req.Action) {
		writeError(c, http.StatusBadRequest, "invalid controller or action name")
		return
	}

	resp, err := s.client.Raw(c.Request.Context(), router.Request{
		Controller: req.Controller,
		Action:     req.Action,
		Data:       req.Data,
	})
	switch {
	case errors.Is(err, router.ErrMalformedResponse):
		writeError(c, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		s.log.Error("route call failed", zap.Error(err),
			zap.String("controller", req.Controller), zap.String("action", req.Action))
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if resp.Err() != nil {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, resp)
}

// isValidRouteName checks that a controller or action name is a plain
// identifier. The managed router matches names by reflection, so anything
// else can never resolve.
func isValidRouteName(name string) bool {
	if len(name) == 0 || len(name) > 256 {
		return false
	}

	for _, c := range name {
		if !((c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') ||
			c == '_') {
			return false
		}
	}

	return true
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message})
}
