package transaction

import (
	"github.com/smallbiznis/creatorpay/internal/transaction/repository"
	"github.com/smallbiznis/creatorpay/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
