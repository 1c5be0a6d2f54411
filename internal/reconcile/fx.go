package reconcile

import (
	"go.uber.org/fx"

	"github.com/fleetops/tollsync/internal/reconcile/service"
)

var Module = fx.Module("reconcile.service",
	fx.Provide(service.NewService),
)
