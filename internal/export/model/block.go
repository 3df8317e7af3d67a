package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block is a raw block as returned by the chain client.
type Block struct {
	Height       uint64
	Hash         string
	ParentHash   string
	Timestamp    time.Time
	Miner        string
	GasLimit     uint64
	GasUsed      uint64
	StateRoot    string
	TxRoot       string
	ReceiptRoot  string
	ExtraData    hexutil.Bytes
	Size         uint64
	Transactions []Transaction
}

// Transaction is a raw transaction.
type Transaction struct {
	Hash        string
	BlockHeight uint64
	BlockHash   string
	Index       uint
	From        string
	To          string
	Nonce       uint64
	Value       string
	Gas         uint64
	GasPrice    string
	Input       hexutil.Bytes
	Type        uint8
}

// Receipt is a raw transaction receipt.
type Receipt struct {
	TxHash            string
	BlockHeight       uint64
	BlockHash         string
	Status            uint64
	GasUsed           uint64
	CumulativeGasUsed uint64
	ContractAddress   string
	Logs              []Log
}

// Log is a single event emitted by a transaction.
type Log struct {
	Address string        `json:"address"`
	Topics  []string      `json:"topics"`
	Data    hexutil.Bytes `json:"data"`
	Index   uint          `json:"log_index"`
}

// IsContractCreation reports whether the transaction deploys a contract.
func (t Transaction) IsContractCreation() bool {
	return t.To == ""
}
