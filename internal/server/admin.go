package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	feescheduledomain "github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
	"go.uber.org/zap"
)

type runPayoutsRequest struct {
	CreatorID string `json:"creator_id"`
}

// RunPayouts claims eligible funds for one creator, or for every creator
// when the body names none.
func (s *Server) RunPayouts(c *gin.Context) {
	var req runPayoutsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	ctx := c.Request.Context()
	creatorID := strings.TrimSpace(req.CreatorID)
	if creatorID != "" {
		res, err := s.payoutSvc.CreatePayout(ctx, creatorID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": res})
		return
	}

	res, err := s.payoutSvc.CalculateAllPayouts(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("manual payout run",
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", len(res.Errors)),
	)
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) ListPendingRetryPayouts(c *gin.Context) {
	payouts, err := s.payoutSvc.GetPendingRetry(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payouts})
}

func (s *Server) GetOutboxStats(c *gin.Context) {
	stats, err := s.processor.Stats(c.Request.Context(), s.finance.Get().Outbox.MaxRetries)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// RetryOutbox re-queues parked events for the next publish pass.
func (s *Server) RetryOutbox(c *gin.Context) {
	requeued, err := s.processor.RetryFailedEvents(c.Request.Context(), s.finance.Get().Outbox.MaxRetries)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"requeued": requeued}})
}

func (s *Server) CleanupOutbox(c *gin.Context) {
	days := s.finance.Get().Outbox.RetentionDays
	if raw := strings.TrimSpace(c.Query("older_than_days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, newValidationError("older_than_days", "invalid_older_than_days", "invalid older_than_days"))
			return
		}
		days = parsed
	}

	removed, err := s.processor.CleanupPublishedEvents(c.Request.Context(), days)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"removed": removed, "older_than_days": days}})
}

func (s *Server) ListFeeSchedules(c *gin.Context) {
	schedules, err := s.scheduleSvc.ListSchedules(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedules})
}

func (s *Server) CreateFeeSchedule(c *gin.Context) {
	var req feescheduledomain.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	schedule, err := s.scheduleSvc.CreateSchedule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": schedule})
}

type setTierRequest struct {
	Tier string `json:"tier"`
}

func (s *Server) SetCreatorTier(c *gin.Context) {
	var req setTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tier, err := s.scheduleSvc.SetTier(c.Request.Context(), c.Param("creator_id"), feescheduledomain.Tier(req.Tier))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tier})
}

func (s *Server) ListLedgerAccounts(c *gin.Context) {
	accounts, err := s.ledgerSvc.ListAccounts(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": accounts})
}

func (s *Server) VerifyTransactionLedger(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid transaction id"))
		return
	}

	check, err := s.ledgerSvc.VerifyBalance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": check})
}
