package model

import (
	"fmt"
	"sort"
	"strings"
)

// DataType is a category of exported records that can be switched off per deployment.
type DataType string

const (
	DataBlockDetail     DataType = "block_detail"
	DataBlockRaw        DataType = "block_raw"
	DataTxRaw           DataType = "tx_raw"
	DataTxReceiptRaw    DataType = "tx_receipt_raw"
	DataBlockTxDetail   DataType = "block_tx_detail"
	DataDeployedAccount DataType = "deployed_account"
	DataContractEvent   DataType = "contract_event"
	DataContractMethod  DataType = "contract_method"
	DataContractInfo    DataType = "contract_info"
)

// AllDataTypes lists every known data type in storage order.
var AllDataTypes = []DataType{
	DataBlockDetail,
	DataBlockRaw,
	DataTxRaw,
	DataTxReceiptRaw,
	DataBlockTxDetail,
	DataDeployedAccount,
	DataContractEvent,
	DataContractMethod,
	DataContractInfo,
}

// DataTypeSet is an immutable set of data types.
type DataTypeSet map[DataType]struct{}

// ParseDataTypes parses a comma separated list such as "tx_raw,deployed_account".
func ParseDataTypes(raw string) (DataTypeSet, error) {
	set := DataTypeSet{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		dt := DataType(part)
		if !dt.Valid() {
			return nil, fmt.Errorf("unknown data type %q", part)
		}
		set[dt] = struct{}{}
	}
	return set, nil
}

// Valid reports whether the data type is known.
func (d DataType) Valid() bool {
	for _, known := range AllDataTypes {
		if d == known {
			return true
		}
	}
	return false
}

// Contains reports whether the set holds the data type. A nil set is empty.
func (s DataTypeSet) Contains(d DataType) bool {
	_, ok := s[d]
	return ok
}

func (s DataTypeSet) String() string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, string(d))
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
