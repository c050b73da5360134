package profile

import (
	"github.com/UrrutyLabs/encuentraya-payments/internal/profile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("profile",
	fx.Provide(service.NewService),
)
