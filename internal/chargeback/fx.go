package chargeback

import (
	"github.com/smallbiznis/creatorpay/internal/chargeback/repository"
	"github.com/smallbiznis/creatorpay/internal/chargeback/service"
	"go.uber.org/fx"
)

var Module = fx.Module("chargeback.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
