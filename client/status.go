package client

import (
	"context"

	"walrus/internal/dispatch"
	"walrus/internal/types"
	"walrus/internal/voting"
	"walrus/walruserrors"
)

// GetBlobStatus fans a status request out to every node in the active
// committee and returns the highest-ranked lifecycle that reaches
// validity weight.
func (c *Client) GetBlobStatus(ctx context.Context, blobID types.BlobID) (types.BlobStatus, error) {
	status, err := c.statusLoader.Load(ctx, blobID)
	if err != nil {
		var zero types.BlobStatus
		return zero, err
	}
	return status, nil
}

// batchStatus is the objectloader.BatchFunc backing the status loader:
// each queued blob ID is resolved independently (status fetches don't
// share a wire batch the way sliver fetches might), but concurrent Load
// calls for the same blob ID inside one window still collapse into one
// fan-out each.
func (c *Client) batchStatus(ctx context.Context, blobIDs []types.BlobID) (map[types.BlobID]types.BlobStatus, error) {
	out := make(map[types.BlobID]types.BlobStatus, len(blobIDs))
	for _, id := range blobIDs {
		status, err := c.fetchStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = status
	}
	return out, nil
}

// statusReport pairs one node's reported status with the weight it
// carries, so HighestValidLifecycle can tally weight per lifecycle
// without needing to look the node back up by index.
type statusReport struct {
	status types.BlobStatus
	weight int
}

func (c *Client) fetchStatus(ctx context.Context, blobID types.BlobID) (types.BlobStatus, error) {
	var zero types.BlobStatus

	cm, err := c.committees.ActiveCommittee(ctx)
	if err != nil {
		return zero, err
	}

	tasks := make([]dispatch.Task[statusReport], len(cm.Nodes))
	for i, node := range cm.Nodes {
		i, node := i, node
		tasks[i] = dispatch.Task[statusReport]{
			Weight:    node.Weight(),
			NodeIndex: i,
			Run: func(ctx context.Context) (statusReport, error) {
				nc, err := c.nodeClient(node)
				if err != nil {
					return statusReport{}, err
				}
				status, err := nc.GetStatus(ctx, blobID)
				if err != nil {
					return statusReport{}, err
				}
				return statusReport{status: *status, weight: node.Weight()}, nil
			},
		}
	}

	reports, err := dispatch.RunAllFanout(ctx, tasks, dispatch.Options[statusReport]{
		NShards:                 cm.NShards(),
		Classify:                classifyTransportError,
		Accept:                  func(statusReport, []statusReport) dispatch.Decision { return dispatch.Keep },
		RequiredWeight:          1,
		FailOnNotFoundOrBlocked: false,
		InsufficientErr:         func() error { return &walruserrors.NoBlobStatusReceived{BlobID: blobID} },
	})
	if err != nil {
		return zero, err
	}

	statuses := make([]types.BlobStatus, len(reports))
	weights := make([]int, len(reports))
	for i, r := range reports {
		statuses[i] = r.status
		weights[i] = r.weight
	}

	best, found := voting.HighestValidLifecycle(statuses, weights, cm.NShards())
	if !found {
		return zero, &walruserrors.NoVerifiedBlobStatusReceived{BlobID: blobID}
	}

	return best, nil
}

func classifyTransportError(err error) dispatch.ErrClass {
	if _, ok := err.(*walruserrors.UserAbort); ok {
		return dispatch.ErrUserAbort
	}
	if _, ok := err.(*walruserrors.NotFound); ok {
		return dispatch.ErrNotFound
	}
	if _, ok := err.(*walruserrors.LegallyUnavailable); ok {
		return dispatch.ErrBlocked
	}
	return dispatch.ErrOther
}
