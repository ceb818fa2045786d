package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	transactiondomain "github.com/smallbiznis/creatorpay/internal/transaction/domain"
)

func (s *Server) GetCreatorBalance(c *gin.Context) {
	balance, err := s.ledgerSvc.CreatorBalance(c.Request.Context(), c.Param("creator_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

// GetPayoutEligibility evaluates eligibility as of now unless as_of is given.
func (s *Server) GetPayoutEligibility(c *gin.Context) {
	asOf, err := parseOptionalTime(c.Query("as_of"), true)
	if err != nil {
		AbortWithError(c, newValidationError("as_of", "invalid_as_of", "invalid as_of"))
		return
	}
	at := s.clock.Now()
	if asOf != nil {
		at = *asOf
	}

	eligibility, err := s.payoutSvc.CalculateEligibility(c.Request.Context(), c.Param("creator_id"), at)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": eligibility})
}

func (s *Server) ListCreatorTransactions(c *gin.Context) {
	pageSize, err := parseLimit(c.Query("page_size"))
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}

	resp, err := s.transactionSvc.List(c.Request.Context(), transactiondomain.ListRequest{
		CreatorID: c.Param("creator_id"),
		Status:    transactiondomain.Status(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		PageToken: strings.TrimSpace(c.Query("page_token")),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            resp.Transactions,
		"next_page_token": resp.NextPageToken,
		"has_more":        resp.HasMore,
	})
}

func (s *Server) GetCreatorStats(c *gin.Context) {
	stats, err := s.transactionSvc.Stats(c.Request.Context(), c.Param("creator_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
