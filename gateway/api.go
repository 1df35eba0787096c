package gateway

import (
	"context"

	"github.com/AvaProtocol/ap-filters/core/filters"
)

// FilterAPI exposes the filter manager as JSON-RPC methods. Registered under a namespace
// such as eth, NewFilter is served as eth_newFilter and so on.
type FilterAPI struct {
	manager *filters.Manager
}

func NewFilterAPI(manager *filters.Manager) *FilterAPI {
	return &FilterAPI{manager: manager}
}

func (api *FilterAPI) NewFilter(ctx context.Context, params filters.LogFilterParams) (filters.FilterID, error) {
	return api.manager.NewLogFilter(ctx, params)
}

func (api *FilterAPI) NewBlockFilter(ctx context.Context) (filters.FilterID, error) {
	return api.manager.NewBlockFilter(ctx)
}

func (api *FilterAPI) NewPendingTransactionFilter(ctx context.Context) (filters.FilterID, error) {
	return api.manager.NewPendingTransactionFilter(ctx)
}

func (api *FilterAPI) UninstallFilter(ctx context.Context, id filters.FilterID) (bool, error) {
	return api.manager.Uninstall(ctx, id)
}

// GetFilterChanges returns logs or hashes added since the last poll of id.
func (api *FilterAPI) GetFilterChanges(ctx context.Context, id filters.FilterID) (interface{}, error) {
	return api.manager.FilterChanges(ctx, id)
}

// GetFilterLogs returns every result of id, whatever its kind.
func (api *FilterAPI) GetFilterLogs(ctx context.Context, id filters.FilterID) (interface{}, error) {
	return api.manager.FilterLogs(ctx, id)
}
