package jsonrpc

import (
	"log/slog"
	"net/http"

	"github.com/lapolinarweb/contracts/internal/service"
)

// ServerConfig holds the configuration for the JSON-RPC server.
type ServerConfig struct {
	Service service.RelayService
	Logger  *slog.Logger
}

// Server is the JSON-RPC server with all wallet methods registered.
type Server struct {
	handler *Handler
}

// NewServer creates a JSON-RPC server.
func NewServer(cfg ServerConfig) *Server {
	handler := NewHandler(cfg.Logger)
	NewWalletHandler(cfg.Service).Register(handler)

	if cfg.Logger != nil {
		cfg.Logger.Info("registered JSON-RPC methods", slog.Any("methods", handler.RegisteredMethods()))
	}
	return &Server{handler: handler}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RegisteredMethods returns the registered method names.
func (s *Server) RegisteredMethods() []string {
	return s.handler.RegisteredMethods()
}
