package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BlockBundle is the decoded payload of one height. It is read-only once built.
type BlockBundle struct {
	Height           uint64
	BlockHash        string
	BlockDetail      BlockDetail
	BlockRaw         BlockRawData
	TxRaw            []TxRawData
	TxReceipts       []TxReceiptRawData
	BlockTxDetails   []BlockTxDetail
	Events           []DecodedEvent
	Methods          []DecodedMethod
	DeployedAccounts []DeployedAccount
}

// BlockDetail summarises a block.
type BlockDetail struct {
	Height     uint64    `json:"block_height"`
	Hash       string    `json:"block_hash"`
	ParentHash string    `json:"parent_hash"`
	Timestamp  time.Time `json:"block_timestamp"`
	TxCount    int       `json:"tx_count"`
	GasUsed    uint64    `json:"gas_used"`
	Miner      string    `json:"miner"`
}

// BlockRawData is the full header of a block plus its transaction hashes.
type BlockRawData struct {
	Height      uint64        `json:"block_height"`
	Hash        string        `json:"block_hash"`
	ParentHash  string        `json:"parent_hash"`
	Timestamp   time.Time     `json:"block_timestamp"`
	Miner       string        `json:"miner"`
	GasLimit    uint64        `json:"gas_limit"`
	GasUsed     uint64        `json:"gas_used"`
	StateRoot   string        `json:"state_root"`
	TxRoot      string        `json:"tx_root"`
	ReceiptRoot string        `json:"receipt_root"`
	ExtraData   hexutil.Bytes `json:"extra_data"`
	Size        uint64        `json:"size"`
	TxHashes    []string      `json:"tx_hashes"`
}

// TxRawData is a raw transaction stored as-is.
type TxRawData struct {
	TxHash    string        `json:"tx_hash"`
	Height    uint64        `json:"block_height"`
	BlockHash string        `json:"block_hash"`
	TxIndex   uint          `json:"tx_index"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Nonce     uint64        `json:"nonce"`
	Value     string        `json:"value"`
	Gas       uint64        `json:"gas"`
	GasPrice  string        `json:"gas_price"`
	Input     hexutil.Bytes `json:"input"`
	Timestamp time.Time     `json:"block_timestamp"`
}

// TxReceiptRawData is a raw receipt stored as-is.
type TxReceiptRawData struct {
	TxHash            string    `json:"tx_hash"`
	Height            uint64    `json:"block_height"`
	Status            uint64    `json:"status"`
	GasUsed           uint64    `json:"gas_used"`
	CumulativeGasUsed uint64    `json:"cumulative_gas_used"`
	ContractAddress   string    `json:"contract_address"`
	Logs              []Log     `json:"logs"`
	Timestamp         time.Time `json:"block_timestamp"`
}

// BlockTxDetail links a transaction to the contract and method it called.
type BlockTxDetail struct {
	TxHash       string    `json:"tx_hash"`
	Height       uint64    `json:"block_height"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	ContractName string    `json:"contract_name"`
	MethodName   string    `json:"method_name"`
	Timestamp    time.Time `json:"block_timestamp"`
}

// DecodedEvent is a contract event decoded with the registered ABI.
type DecodedEvent struct {
	Table           string         `json:"-"`
	TxHash          string         `json:"tx_hash"`
	LogIndex        uint           `json:"log_index"`
	Height          uint64         `json:"block_height"`
	ContractName    string         `json:"contract_name"`
	ContractAddress string         `json:"contract_address"`
	EventName       string         `json:"event_name"`
	Params          map[string]any `json:"params"`
	Timestamp       time.Time      `json:"block_timestamp"`
}

// DecodedMethod is a contract call decoded with the registered ABI.
type DecodedMethod struct {
	Table           string         `json:"-"`
	TxHash          string         `json:"tx_hash"`
	Height          uint64         `json:"block_height"`
	ContractName    string         `json:"contract_name"`
	ContractAddress string         `json:"contract_address"`
	MethodName      string         `json:"method_name"`
	From            string         `json:"from"`
	Params          map[string]any `json:"params"`
	Timestamp       time.Time      `json:"block_timestamp"`
}

// DeployedAccount is a contract account created in a block.
type DeployedAccount struct {
	Address      string    `json:"contract_address"`
	Height       uint64    `json:"block_height"`
	TxHash       string    `json:"tx_hash"`
	ContractName string    `json:"contract_name"`
	CodeHash     string    `json:"code_hash"`
	Timestamp    time.Time `json:"block_timestamp"`
}
