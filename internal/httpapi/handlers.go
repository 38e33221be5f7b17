package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"shares-gate/internal/chain"
	"shares-gate/internal/gate"
	"shares-gate/internal/storage"
)

const defaultChainType = "monad"

// handleVerify runs the synchronous gate check: verify a signed challenge,
// refresh the identity mapping, and grant access on a positive live
// balance. Verification failures are denials, never internal errors.
func (s *Server) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
		return
	}

	chainType := req.ChainType
	if chainType == "" {
		chainType = defaultChainType
	}

	adapter, ok := s.adapters[chainType]
	if !ok {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: "unsupported chain_type: " + chainType})
		return
	}

	err := s.auth.Authorize(c.Request.Context(), adapter, gate.AuthRequest{
		Challenge:   req.Challenge,
		ChatGroupID: req.ChatID,
		Signature:   req.Signature,
		User:        req.User,
		ChainType:   chainType,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, envelope{Success: true})
	case errors.Is(err, gate.ErrCommunityNotFound):
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
	case errors.Is(err, chain.ErrMalformedSignature),
		errors.Is(err, chain.ErrRecoveryFailed),
		errors.Is(err, gate.ErrAddressMismatch):
		// Authentication denial: reported to the caller, never fatal.
		c.JSON(http.StatusOK, envelope{Success: false, Error: err.Error()})
	case errors.Is(err, gate.ErrNotifier):
		s.logger.Error().Err(err).Msg("notifier failure during gate check")
		c.JSON(http.StatusInternalServerError, envelope{Success: false, Error: err.Error()})
	default:
		s.logger.Error().Err(err).Msg("gate check failed")
		c.JSON(http.StatusInternalServerError, envelope{Success: false, Error: "internal error"})
	}
}

// handleUserShares lists cached ledger balances for a trader.
func (s *Server) handleUserShares(c *gin.Context) {
	userAddress := gate.NormalizeAddress(c.Param("user_address"))
	chainType := c.Param("chain_type")

	shares, err := s.shares.ListUserShares(c.Request.Context(), userAddress, chainType)
	if err != nil {
		s.logger.Error().Err(err).Str("user", userAddress).Msg("failed to list user shares")
		c.JSON(http.StatusInternalServerError, envelope{Success: false, Error: "internal error"})
		return
	}

	resp := userSharesResponse{
		UserAddress: userAddress,
		ChainType:   chainType,
		Shares:      make([]subjectShare, 0, len(shares)),
	}
	for _, share := range shares {
		resp.Shares = append(resp.Shares, subjectShare{
			SubjectAddress: share.Subject,
			SharesAmount:   share.ShareAmount.String(),
		})
	}

	c.JSON(http.StatusOK, resp)
}

// handleAddBot registers a gated community for a subject.
func (s *Server) handleAddBot(c *gin.Context) {
	var req addBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
		return
	}

	chainType := req.ChainType
	if chainType == "" {
		chainType = defaultChainType
	}

	bot := storageBot(req, chainType)
	if err := s.bots.InsertBot(c.Request.Context(), bot); err != nil {
		s.logger.Error().Err(err).Str("agent", req.AgentName).Msg("failed to register bot")
		c.JSON(http.StatusInternalServerError, envelope{Success: false, Error: "failed to add bot: " + err.Error()})
		return
	}

	s.logger.Info().Str("agent", req.AgentName).Str("chain", chainType).Msg("new community registered")
	c.JSON(http.StatusOK, envelope{Success: true})
}

// handleListAgents pages through registered communities.
func (s *Server) handleListAgents(c *gin.Context) {
	page := queryInt64(c, "page", 1)
	pageSize := queryInt64(c, "page_size", 10)
	if page < 1 || pageSize < 1 {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: "invalid pagination parameters"})
		return
	}

	bots, total, err := s.bots.ListBots(c.Request.Context(), page, pageSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list agents")
		c.JSON(http.StatusInternalServerError, envelope{Success: false, Error: "internal error"})
		return
	}

	resp := agentListResponse{
		Agents:   make([]agentSummary, 0, len(bots)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, bot := range bots {
		resp.Agents = append(resp.Agents, agentSummary{
			AgentName:      bot.AgentName,
			SubjectAddress: bot.SubjectAddress,
			CreatedAt:      bot.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// handleGetAgent resolves a community by agent name.
func (s *Server) handleGetAgent(c *gin.Context) {
	name := c.Param("agent_name")

	bot, ok, err := s.bots.GetBotByName(c.Request.Context(), name)
	if err != nil {
		s.logger.Error().Err(err).Str("agent", name).Msg("failed to get agent")
		c.JSON(http.StatusInternalServerError, agentResponse{Success: false, Error: "internal error"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, agentResponse{Success: false, Error: "agent not found: " + name})
		return
	}

	c.JSON(http.StatusOK, agentResponse{
		Success: true,
		Agent: &agentSummary{
			AgentName:      bot.AgentName,
			SubjectAddress: bot.SubjectAddress,
			CreatedAt:      bot.CreatedAt,
		},
	})
}

// handleAgentDetail returns the public profile of a community.
func (s *Server) handleAgentDetail(c *gin.Context) {
	name := c.Param("agent_name")

	bot, ok, err := s.bots.GetBotByName(c.Request.Context(), name)
	if err != nil {
		s.logger.Error().Err(err).Str("agent", name).Msg("failed to get agent detail")
		c.JSON(http.StatusInternalServerError, agentDetailResponse{Success: false, Error: "internal error"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, agentDetailResponse{Success: false, Error: "agent not found: " + name})
		return
	}

	c.JSON(http.StatusOK, agentDetailResponse{
		AgentName:      bot.AgentName,
		SubjectAddress: bot.SubjectAddress,
		InviteURL:      bot.InviteURL,
		Bio:            bot.Bio,
		Success:        true,
	})
}

func storageBot(req addBotRequest, chainType string) storage.Bot {
	return storage.Bot{
		AgentName:      req.AgentName,
		Bio:            req.Bio,
		InviteURL:      req.InviteURL,
		BotToken:       req.BotToken,
		ChatGroupID:    req.ChatGroupID,
		SubjectAddress: gate.NormalizeAddress(req.SubjectAddress),
		ChainType:      chainType,
	}
}

func queryInt64(c *gin.Context, key string, fallback int64) int64 {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}
