package model

// ContractInfo is the metadata of a registered contract.
type ContractInfo struct {
	Name    string `json:"contract_name"`
	Version string `json:"version"`
	Address string `json:"contract_address,omitempty"`
	ABI     string `json:"abi"`
	ABIHash string `json:"abi_hash"`
	Binary  string `json:"binary,omitempty"`
}
