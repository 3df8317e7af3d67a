// Package contract loads the contracts whose calls and events are decoded during export.
package contract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"gopkg.in/yaml.v2"
)

const (
	eventSuffix  = "event"
	methodSuffix = "method"
)

type (
	file struct {
		Contracts []entry `yaml:"contracts"`
	}

	entry struct {
		Name       string `yaml:"name"`
		Version    string `yaml:"version"`
		Address    string `yaml:"address"`
		ABI        string `yaml:"abi"`
		ABIFile    string `yaml:"abi_file"`
		RuntimeBin string `yaml:"runtime_bin"`
	}
)

// Contract is a registered contract with its parsed ABI.
type Contract struct {
	Info model.ContractInfo
	ABI  abi.ABI
}

// Registry maps addresses and runtime code to registered contracts.
// Lookups are safe for concurrent use; Register adds addresses discovered while crawling.
type Registry struct {
	contracts []*Contract
	byName    map[string]*Contract
	byCode    map[common.Hash]*Contract

	mu        sync.RWMutex
	byAddress map[common.Address]*Contract
}

// Load reads a registry file. Environment variables in the file are expanded.
// An empty path yields an empty registry.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Parse(nil, "")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contract registry %s: %w", path, err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse builds a registry from YAML. Relative abi_file paths are resolved against baseDir.
func Parse(data []byte, baseDir string) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse contract registry: %w", err)
	}

	r := &Registry{
		byName:    make(map[string]*Contract, len(f.Contracts)),
		byCode:    make(map[common.Hash]*Contract),
		byAddress: make(map[common.Address]*Contract),
	}
	for i, e := range f.Contracts {
		c, err := newContract(e, baseDir)
		if err != nil {
			return nil, fmt.Errorf("contract #%d %q: %w", i, e.Name, err)
		}
		if _, dup := r.byName[c.Info.Name]; dup {
			return nil, fmt.Errorf("contract %q registered twice", c.Info.Name)
		}
		r.byName[c.Info.Name] = c
		r.contracts = append(r.contracts, c)
		if c.Info.Address != "" {
			r.byAddress[common.HexToAddress(c.Info.Address)] = c
		}
		if c.Info.Binary != "" {
			code, err := hexutil.Decode(c.Info.Binary)
			if err != nil {
				return nil, fmt.Errorf("contract %q runtime_bin: %w", c.Info.Name, err)
			}
			r.byCode[crypto.Keccak256Hash(code)] = c
		}
	}
	sort.Slice(r.contracts, func(i, j int) bool {
		return r.contracts[i].Info.Name < r.contracts[j].Info.Name
	})
	return r, nil
}

func newContract(e entry, baseDir string) (*Contract, error) {
	if e.Name == "" {
		return nil, errors.New("name is required")
	}
	raw := strings.TrimSpace(e.ABI)
	if raw == "" && e.ABIFile != "" {
		path := e.ABIFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read abi file: %w", err)
		}
		raw = strings.TrimSpace(string(data))
	}
	if raw == "" {
		return nil, errors.New("abi or abi_file is required")
	}
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	if e.Address != "" && !common.IsHexAddress(e.Address) {
		return nil, fmt.Errorf("invalid address %q", e.Address)
	}

	info := model.ContractInfo{
		Name:    e.Name,
		Version: e.Version,
		ABI:     raw,
		ABIHash: crypto.Keccak256Hash([]byte(raw)).Hex(),
		Binary:  e.RuntimeBin,
	}
	if e.Address != "" {
		info.Address = common.HexToAddress(e.Address).Hex()
	}
	return &Contract{Info: info, ABI: parsed}, nil
}

// Contracts returns the metadata of every registered contract ordered by name.
func (r *Registry) Contracts() []model.ContractInfo {
	out := make([]model.ContractInfo, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, c.Info)
	}
	return out
}

// Len returns the number of registered contracts.
func (r *Registry) Len() int {
	return len(r.contracts)
}

// ByAddress returns the contract deployed at address.
func (r *Registry) ByAddress(address string) (*Contract, bool) {
	if !common.IsHexAddress(address) {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byAddress[common.HexToAddress(address)]
	return c, ok
}

// ByCode identifies a contract by its runtime bytecode.
func (r *Registry) ByCode(code []byte) (*Contract, bool) {
	if len(code) == 0 {
		return nil, false
	}
	c, ok := r.byCode[crypto.Keccak256Hash(code)]
	return c, ok
}

// HasRuntimeCode reports whether any contract can be identified by its bytecode.
func (r *Registry) HasRuntimeCode() bool {
	return len(r.byCode) > 0
}

// Register binds an address to a registered contract name.
func (r *Registry) Register(address, name string) error {
	c, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("unknown contract %q", name)
	}
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address %q", address)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAddress[common.HexToAddress(address)] = c
	return nil
}

// IndexNames returns the derived table names of every event and state-changing method.
func (r *Registry) IndexNames() []string {
	seen := map[string]struct{}{}
	for _, c := range r.contracts {
		for _, ev := range c.ABI.Events {
			seen[EventTable(c.Info.Name, ev.RawName)] = struct{}{}
		}
		for _, m := range c.ABI.Methods {
			if m.IsConstant() {
				continue
			}
			seen[MethodTable(c.Info.Name, m.RawName)] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EventTable derives the table or index name of a contract event.
func EventTable(contractName, eventName string) string {
	return strings.ToLower(contractName + eventName + eventSuffix)
}

// MethodTable derives the table or index name of a contract method.
func MethodTable(contractName, methodName string) string {
	return strings.ToLower(contractName + methodName + methodSuffix)
}
