// Package search is the search-index sink: one index per record type plus one per decoded event or method.
package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const Name = "search"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Sink struct {
	transport Transport
	disabled  model.DataTypeSet
	indices   []string
	metrics   Metrics
	logger    *zap.Logger
}

// New builds the sink and creates every missing index before returning.
// dynamic holds the registry-derived event and method index names.
func New(
	ctx context.Context,
	transport Transport,
	dynamic []string,
	disabled model.DataTypeSet,
	workers int,
	metrics Metrics,
	logger *zap.Logger,
) (*Sink, error) {
	s := &Sink{
		transport: transport,
		disabled:  disabled,
		indices:   managedIndices(disabled, dynamic),
		metrics:   metrics,
		logger:    logger.Named("searchSink"),
	}

	started := time.Now()
	err := s.ensureIndices(ctx, workers)
	s.metrics.Observe("ensure_indices", err, started)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) Name() string {
	return Name
}

// Indices lists the managed indices.
func (s *Sink) Indices() []string {
	return append([]string(nil), s.indices...)
}

// StoreBundle writes every enabled record of the bundle with a single bulk request.
// Document ids are derived from natural keys so a replay overwrites instead of duplicating.
func (s *Sink) StoreBundle(ctx context.Context, bundle *model.BlockBundle) (err error) {
	started := time.Now()
	defer func() {
		s.metrics.Observe("store_bundle", err, started)
	}()

	var body bytes.Buffer
	n, err := s.encodeBundle(&body, bundle)
	if err != nil {
		return fmt.Errorf("encode block %d: %w", bundle.Height, err)
	}
	if n == 0 {
		return nil
	}
	if err = s.bulk(ctx, &body); err != nil {
		return fmt.Errorf("index block %d: %w", bundle.Height, err)
	}
	return nil
}

func (s *Sink) StoreContractInfo(ctx context.Context, info model.ContractInfo) (err error) {
	started := time.Now()
	defer func() {
		s.metrics.Observe("store_contract_info", err, started)
	}()

	if s.disabled.Contains(model.DataContractInfo) {
		return nil
	}
	var body bytes.Buffer
	if err = writeDoc(&body, IndexContractInfo, info.Name+"_"+info.Version, info); err != nil {
		return fmt.Errorf("encode contract info %s: %w", info.Name, err)
	}
	if err = s.bulk(ctx, &body); err != nil {
		return fmt.Errorf("index contract info %s: %w", info.Name, err)
	}
	return nil
}

const rollbackQuery = `{"query":{"range":{"block_height":{"gte":%d}}}}`

// RollbackFrom deletes every document at or above height from all height-keyed indices.
func (s *Sink) RollbackFrom(ctx context.Context, height uint64) (err error) {
	started := time.Now()
	defer func() {
		s.metrics.Observe("rollback_from", err, started)
	}()

	indices := make([]string, 0, len(s.indices))
	for _, idx := range s.indices {
		if idx != IndexContractInfo {
			indices = append(indices, idx)
		}
	}
	if len(indices) == 0 {
		return nil
	}

	refresh := true
	ignoreUnavailable := true
	res, err := esapi.DeleteByQueryRequest{
		Index:             indices,
		Body:              bytes.NewReader([]byte(fmt.Sprintf(rollbackQuery, height))),
		Conflicts:         "proceed",
		Refresh:           &refresh,
		IgnoreUnavailable: &ignoreUnavailable,
	}.Do(ctx, s.transport)
	if err != nil {
		return fmt.Errorf("rollback from %d: %w", height, err)
	}
	defer drain(res)

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("rollback from %d: %s: %s", height, res.Status(), raw)
	}
	var out struct {
		Deleted  int64 `json:"deleted"`
		Failures []any `json:"failures"`
	}
	if err = json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("rollback from %d: decode response: %w", height, err)
	}
	if len(out.Failures) > 0 {
		return fmt.Errorf("rollback from %d: %d delete failures", height, len(out.Failures))
	}
	s.logger.Info("rolled back",
		zap.Uint64("from_height", height),
		zap.Int64("deleted", out.Deleted),
		zap.Int("indices", len(indices)),
	)
	return nil
}

func (s *Sink) encodeBundle(w *bytes.Buffer, b *model.BlockBundle) (int, error) {
	n := 0
	add := func(dt model.DataType, index, id string, doc any) error {
		if s.disabled.Contains(dt) {
			return nil
		}
		n++
		return writeDoc(w, index, id, doc)
	}

	height := strconv.FormatUint(b.Height, 10)
	if err := add(model.DataBlockDetail, IndexBlockDetail, height, b.BlockDetail); err != nil {
		return 0, err
	}
	if err := add(model.DataBlockRaw, IndexBlockRaw, height, b.BlockRaw); err != nil {
		return 0, err
	}
	for _, tx := range b.TxRaw {
		if err := add(model.DataTxRaw, IndexTxRaw, tx.TxHash, tx); err != nil {
			return 0, err
		}
	}
	for _, r := range b.TxReceipts {
		if err := add(model.DataTxReceiptRaw, IndexTxReceiptRaw, r.TxHash, r); err != nil {
			return 0, err
		}
	}
	for _, d := range b.BlockTxDetails {
		if err := add(model.DataBlockTxDetail, IndexBlockTxDetail, d.TxHash, d); err != nil {
			return 0, err
		}
	}
	for _, a := range b.DeployedAccounts {
		if err := add(model.DataDeployedAccount, IndexDeployedAccount, a.Address, a); err != nil {
			return 0, err
		}
	}
	for _, e := range b.Events {
		id := e.TxHash + "_" + strconv.FormatUint(uint64(e.LogIndex), 10)
		if err := add(model.DataContractEvent, e.Table, id, e); err != nil {
			return 0, err
		}
	}
	for _, m := range b.Methods {
		if err := add(model.DataContractMethod, m.Table, m.TxHash, m); err != nil {
			return 0, err
		}
	}
	return n, nil
}

type bulkAction struct {
	Index bulkTarget `json:"index"`
}

type bulkTarget struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

func writeDoc(w *bytes.Buffer, index, id string, doc any) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(bulkAction{Index: bulkTarget{Index: index, ID: id}}); err != nil {
		return err
	}
	return enc.Encode(doc)
}

type bulkResponse struct {
	Errors bool                              `json:"errors"`
	Items  []map[string]bulkResponseItemInfo `json:"items"`
}

type bulkResponseItemInfo struct {
	Index  string `json:"_index"`
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

func (s *Sink) bulk(ctx context.Context, body io.Reader) error {
	res, err := esapi.BulkRequest{Body: body}.Do(ctx, s.transport)
	if err != nil {
		return fmt.Errorf("bulk: %w", err)
	}
	defer drain(res)

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk: %s: %s", res.Status(), raw)
	}
	var out bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("bulk: decode response: %w", err)
	}
	if !out.Errors {
		return nil
	}

	failed := 0
	var first string
	for _, item := range out.Items {
		for _, info := range item {
			if info.Error == nil {
				continue
			}
			if failed == 0 {
				first = fmt.Sprintf("%s/%s: %s: %s", info.Index, info.ID, info.Error.Type, info.Error.Reason)
			}
			failed++
		}
	}
	return fmt.Errorf("bulk: %d items failed, first %s", failed, first)
}
