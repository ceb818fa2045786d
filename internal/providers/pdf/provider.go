package pdf

import (
	"context"

	"go.uber.org/fx"
)

// Provider renders creator-facing documents.
type Provider interface {
	GeneratePayoutStatement(ctx context.Context, data StatementData) ([]byte, error)
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

var Module = fx.Module("pdf",
	fx.Provide(New),
)
