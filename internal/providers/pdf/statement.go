package pdf

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrEmptyStatement = errors.New("empty_statement")

type StatementData struct {
	PayoutID           string
	CreatorID          string
	Status             string
	PeriodStart        string
	PeriodEnd          string
	Currency           string
	GrossTotal         int64
	PlatformFeeTotal   int64
	PayoutAmount       int64
	ProviderTransferID string
	SentAt             string
	Items              []StatementItem
}

type StatementItem struct {
	TransactionID string
	OccurredAt    string
	Amount        int64
}

func (p *PDFProvider) GeneratePayoutStatement(ctx context.Context, data StatementData) ([]byte, error) {
	if data.PayoutID == "" {
		return nil, ErrEmptyStatement
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Payout statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.Status, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Payout: "+data.PayoutID, props.Text{Top: 0, Size: 9}),
			text.New("Creator: "+data.CreatorID, props.Text{Top: 5, Size: 9}),
			text.New("Period: "+data.PeriodStart+" to "+data.PeriodEnd, props.Text{Top: 10, Size: 9}),
		),
		col.New(6).Add(
			text.New("Transfer: "+valueOrDash(data.ProviderTransferID), props.Text{Top: 0, Size: 9, Align: align.Right}),
			text.New("Sent: "+valueOrDash(data.SentAt), props.Text{Top: 5, Size: 9, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Transaction", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Occurred", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Creator amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range data.Items {
		m.AddRow(8,
			text.NewCol(6, item.TransactionID, props.Text{Size: 9}),
			text.NewCol(3, item.OccurredAt, props.Text{Size: 9}),
			text.NewCol(3, FormatAmount(item.Amount, data.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(2, line.NewCol(12))
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Gross", props.Text{Size: 9}),
		text.NewCol(3, FormatAmount(data.GrossTotal, data.Currency), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Platform fees", props.Text{Size: 9}),
		text.NewCol(3, FormatAmount(data.PlatformFeeTotal, data.Currency), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Payout", props.Text{Size: 10, Style: fontstyle.Bold}),
		text.NewCol(3, FormatAmount(data.PayoutAmount, data.Currency), props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

// FormatAmount renders minor units with two decimals.
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency)
}

func valueOrDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
