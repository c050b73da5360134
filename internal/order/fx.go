package order

import (
	"github.com/UrrutyLabs/encuentraya-payments/internal/order/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("order",
	fx.Provide(repository.Provide),
)
