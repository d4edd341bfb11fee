package indexer

import (
	"context"

	"github.com/computechain/explorer/pkg/db/models"
	"github.com/computechain/explorer/pkg/rpc"
)

// RPCNode adapts the rpc.HTTPClient to the NodeClient interface, converting
// wire shapes to storage models.
type RPCNode struct {
	client *rpc.HTTPClient
}

// NewRPCNode wraps an rpc.HTTPClient.
func NewRPCNode(client *rpc.HTTPClient) *RPCNode {
	return &RPCNode{client: client}
}

func (n *RPCNode) ChainHead(ctx context.Context) (uint64, error) {
	return n.client.ChainHead(ctx)
}

func (n *RPCNode) BlockByHeight(ctx context.Context, height uint64) (*models.Block, []*models.Transaction, error) {
	result, err := n.client.BlockByHeight(ctx, height)
	if err != nil {
		return nil, nil, err
	}
	return result.ToModel()
}
