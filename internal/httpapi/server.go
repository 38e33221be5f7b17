package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"shares-gate/internal/chain"
	"shares-gate/internal/gate"
	"shares-gate/internal/storage"
)

// SharesReader lists cached ledger balances for a trader.
type SharesReader interface {
	ListUserShares(ctx context.Context, trader, chainType string) ([]storage.UserShare, error)
}

// Authorizer runs the synchronous signature-and-balance gate check.
type Authorizer interface {
	Authorize(ctx context.Context, adapter chain.Adapter, req gate.AuthRequest) error
}

// Server is the thin HTTP boundary over the core: signature gate checks,
// ledger reads, and the community registry.
type Server struct {
	addr     string
	bots     storage.BotStore
	shares   SharesReader
	auth     Authorizer
	adapters map[string]chain.Adapter
	logger   zerolog.Logger
}

// NewServer wires the API server.
func NewServer(addr string, bots storage.BotStore, shares SharesReader, auth Authorizer, adapters map[string]chain.Adapter, logger zerolog.Logger) *Server {
	return &Server{
		addr:     addr,
		bots:     bots,
		shares:   shares,
		auth:     auth,
		adapters: adapters,
		logger:   logger.With().Str("component", "httpapi").Logger(),
	}
}

// Router assembles the gin engine.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/verify-signature", s.handleVerify)
	router.GET("/users/:user_address/shares/:chain_type", s.handleUserShares)
	router.POST("/add_tg_bot", s.handleAddBot)
	router.GET("/agents", s.handleListAgents)
	router.GET("/agents/:agent_name", s.handleGetAgent)
	router.GET("/agents/:agent_name/detail", s.handleAgentDetail)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// Run serves until ctx is cancelled, then drains the listener.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("http listener starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
