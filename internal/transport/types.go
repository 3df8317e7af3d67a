package transport

import (
	"context"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/service/syncer"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	SyncState interface {
		Snapshot(ctx context.Context) syncer.Snapshot
	}

	AlertLog interface {
		Recent() []model.Alert
	}
)
