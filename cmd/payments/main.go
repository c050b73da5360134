package main

import (
	"github.com/UrrutyLabs/encuentraya-payments/internal/audit"
	"github.com/UrrutyLabs/encuentraya-payments/internal/clock"
	"github.com/UrrutyLabs/encuentraya-payments/internal/config"
	"github.com/UrrutyLabs/encuentraya-payments/internal/logger"
	"github.com/UrrutyLabs/encuentraya-payments/internal/migration"
	"github.com/UrrutyLabs/encuentraya-payments/internal/observability"
	"github.com/UrrutyLabs/encuentraya-payments/internal/order"
	"github.com/UrrutyLabs/encuentraya-payments/internal/payment"
	"github.com/UrrutyLabs/encuentraya-payments/internal/profile"
	"github.com/UrrutyLabs/encuentraya-payments/internal/ratelimit"
	"github.com/UrrutyLabs/encuentraya-payments/internal/server"
	"github.com/UrrutyLabs/encuentraya-payments/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		order.Module,
		profile.Module,
		audit.Module,
		payment.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
