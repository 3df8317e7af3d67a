package alert

import (
	"context"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	Store interface {
		InsertAlerts(ctx context.Context, alerts []model.Alert) error
	}

	Metrics interface {
		ObserveRaised(kind string)
		ObserveDropped(count int)
	}
)
