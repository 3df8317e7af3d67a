package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"github.com/goodnatureofminers/blockexport-backend/pkg/workerpool"
	"go.uber.org/zap"
)

const (
	IndexBlockDetail     = "block_detail_info"
	IndexBlockRaw        = "block_raw_data"
	IndexTxRaw           = "tx_raw_data"
	IndexTxReceiptRaw    = "tx_receipt_raw_data"
	IndexBlockTxDetail   = "block_tx_detail_info"
	IndexDeployedAccount = "deployed_account_info"
	IndexContractInfo    = "contract_info"
)

var fixedIndices = []struct {
	dataType model.DataType
	index    string
}{
	{model.DataBlockDetail, IndexBlockDetail},
	{model.DataBlockRaw, IndexBlockRaw},
	{model.DataTxRaw, IndexTxRaw},
	{model.DataTxReceiptRaw, IndexTxReceiptRaw},
	{model.DataBlockTxDetail, IndexBlockTxDetail},
	{model.DataDeployedAccount, IndexDeployedAccount},
	{model.DataContractInfo, IndexContractInfo},
}

const blockHeightMapping = `{"mappings":{"properties":{"block_height":{"type":"long"}}}}`

// managedIndices returns every index the sink writes, given the disabled data types
// and the registry-derived event and method index names.
func managedIndices(disabled model.DataTypeSet, dynamic []string) []string {
	var out []string
	for _, f := range fixedIndices {
		if !disabled.Contains(f.dataType) {
			out = append(out, f.index)
		}
	}
	for _, name := range dynamic {
		if isEventIndex(name) && disabled.Contains(model.DataContractEvent) {
			continue
		}
		if !isEventIndex(name) && disabled.Contains(model.DataContractMethod) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func isEventIndex(name string) bool {
	return strings.HasSuffix(name, "event")
}

func (s *Sink) ensureIndices(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}
	return workerpool.Process(ctx, workers, s.indices, s.ensureIndex, nil)
}

func (s *Sink) ensureIndex(ctx context.Context, index string) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, s.transport)
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	drain(res)
	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index %s: %s", index, res.Status())
	}

	body := ""
	if index != IndexContractInfo {
		body = blockHeightMapping
	}
	req := esapi.IndicesCreateRequest{Index: index}
	if body != "" {
		req.Body = strings.NewReader(body)
	}
	res, err = req.Do(ctx, s.transport)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer drain(res)
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		if strings.Contains(string(raw), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index %s: %s: %s", index, res.Status(), raw)
	}
	s.logger.Info("index created", zap.String("index", index))
	return nil
}

func drain(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
