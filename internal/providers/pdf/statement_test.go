package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePayoutStatement(t *testing.T) {
	p := New()
	doc, err := p.GeneratePayoutStatement(context.Background(), StatementData{
		PayoutID:         "1",
		CreatorID:        "creator_1",
		Status:           "CALCULATED",
		PeriodStart:      "2026-01-01",
		PeriodEnd:        "2026-01-31",
		Currency:         "USD",
		GrossTotal:       25000,
		PlatformFeeTotal: 2500,
		PayoutAmount:     22500,
		Items: []StatementItem{
			{TransactionID: "10", OccurredAt: "2026-01-02", Amount: 9000},
			{TransactionID: "11", OccurredAt: "2026-01-03", Amount: 13500},
		},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestGeneratePayoutStatementRequiresPayout(t *testing.T) {
	_, err := New().GeneratePayoutStatement(context.Background(), StatementData{})
	assert.ErrorIs(t, err, ErrEmptyStatement)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "225.00 USD", FormatAmount(22500, "USD"))
	assert.Equal(t, "0.05 USD", FormatAmount(5, "USD"))
	assert.Equal(t, "-1.50 USD", FormatAmount(-150, "USD"))
}
