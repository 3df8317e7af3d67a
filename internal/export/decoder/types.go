package decoder

import (
	"context"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/contract"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	ChainClient interface {
		TransactionReceipt(ctx context.Context, hash string) (*model.Receipt, error)
		Code(ctx context.Context, address string) ([]byte, error)
	}

	Registry interface {
		ByAddress(address string) (*contract.Contract, bool)
		ByCode(code []byte) (*contract.Contract, bool)
		HasRuntimeCode() bool
		Register(address, name string) error
	}
)
