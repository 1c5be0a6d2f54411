package invoicing

import (
	"github.com/fleetops/tollsync/internal/invoicing/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("invoicing",
	fx.Provide(repository.Provide),
)
