package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	chargebackdomain "github.com/smallbiznis/creatorpay/internal/chargeback/domain"
)

func (s *Server) ListChargebacks(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	txnID, err := parseOptionalSnowflakeID(c.Query("transaction_id"))
	if err != nil {
		AbortWithError(c, newValidationError("transaction_id", "invalid_transaction_id", "invalid transaction_id"))
		return
	}

	req := chargebackdomain.ListRequest{
		CreatorID: strings.TrimSpace(c.Query("creator_id")),
		Status:    chargebackdomain.Status(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Limit:     limit,
	}
	if txnID != nil {
		req.TransactionID = *txnID
	}

	resp, err := s.chargebackSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetChargeback(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid chargeback id"))
		return
	}

	cb, err := s.chargebackSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cb})
}

func (s *Server) ResolveChargebackWon(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid chargeback id"))
		return
	}

	cb, err := s.chargebackSvc.ResolveWon(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cb})
}

func (s *Server) ResolveChargebackLost(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid chargeback id"))
		return
	}

	cb, err := s.chargebackSvc.ResolveLost(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cb})
}
