package tollimport

import (
	"github.com/fleetops/tollsync/internal/tollimport/service"
	tollrecordrepository "github.com/fleetops/tollsync/internal/tollrecord/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("tollimport.service",
	fx.Provide(tollrecordrepository.Provide),
	fx.Provide(service.NewService),
)
