package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, node *snowflake.Node, clk clock.Clock) error {
		if err := Migrate(conn); err != nil {
			return err
		}
		return seed.Run(conn, node, clk.Now())
	}),
)
