package audit

import (
	"github.com/UrrutyLabs/encuentraya-payments/internal/audit/repository"
	"github.com/UrrutyLabs/encuentraya-payments/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
