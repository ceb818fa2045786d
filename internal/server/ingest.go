package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	chargebackdomain "github.com/smallbiznis/creatorpay/internal/chargeback/domain"
	transactiondomain "github.com/smallbiznis/creatorpay/internal/transaction/domain"
)

// CreateTransaction answers 201 for a new payment and 200 when the provider
// event was already ingested.
func (s *Server) CreateTransaction(c *gin.Context) {
	var req transactiondomain.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.CreatorID = strings.TrimSpace(req.CreatorID)
	req.FanUserID = strings.TrimSpace(req.FanUserID)
	req.Provider = strings.TrimSpace(req.Provider)
	req.ProviderPaymentID = strings.TrimSpace(req.ProviderPaymentID)
	req.ProviderEventID = strings.TrimSpace(req.ProviderEventID)

	txn, created, err := s.transactionSvc.CreateTransaction(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": txn, "created": created})
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RefundTransaction(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid transaction id"))
		return
	}

	var body refundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	txn, err := s.transactionSvc.RefundTransaction(c.Request.Context(), transactiondomain.RefundRequest{
		TransactionID: id,
		Reason:        strings.TrimSpace(body.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (s *Server) CreateChargeback(c *gin.Context) {
	var req chargebackdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.OriginalEventID = strings.TrimSpace(req.OriginalEventID)
	req.ProviderCaseID = strings.TrimSpace(req.ProviderCaseID)
	req.Provider = strings.TrimSpace(req.Provider)

	cb, created, err := s.chargebackSvc.CreateChargeback(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": cb, "created": created})
}
