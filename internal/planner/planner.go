// Package planner turns a validated dependency graph into an ExecutionPlan:
// depth-ordered batches, optionally capped in size, with duration estimates
// and a deterministic intra-batch ordering.
package planner

import (
	"sort"

	"github.com/DoesN0tCompute/bamreconciler/internal/depgraph"
	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

// durationEstimate is the per-operation-type pacing hint used to compute a
// batch's estimated duration; it is a display hint only, never a scheduling
// input.
var durationEstimate = map[model.OperationType]float64{
	model.OpCreate: 0.5,
	model.OpUpdate: 0.3,
	model.OpDelete: 0.2,
	model.OpNoop:   0.01,
	model.OpOrphan: 0,
}

// Options configures plan construction.
type Options struct {
	MaxBatchSize int // 0 means unbounded
}

// Build validates g and produces an ExecutionPlan.
func Build(g *depgraph.Graph, opts Options) (*model.ExecutionPlan, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	depthBatches, err := g.Batches()
	if err != nil {
		return nil, err
	}
	g.SyncOperationEdges()

	var batches []*model.ExecutionBatch
	batchID := 0
	total := 0
	metaByType := map[model.OperationType]int{}

	for depth, nodes := range depthBatches {
		ops := make([]*model.Operation, 0, len(nodes))
		for _, n := range nodes {
			ops = append(ops, n.Operation)
			metaByType[n.Operation.OperationType]++
		}
		total += len(ops)

		chunks := splitChunks(ops, opts.MaxBatchSize)
		for _, chunk := range chunks {
			optimize(chunk)
			batches = append(batches, &model.ExecutionBatch{
				BatchID:          batchID,
				Operations:       chunk,
				Depth:            depth,
				EstimatedSeconds: estimateBatch(chunk),
			})
			batchID++
		}
	}

	plan := &model.ExecutionPlan{
		Batches:         batches,
		TotalOperations: total,
		MaxParallelism:  maxBatchLen(batches),
		Metadata:        map[string]any{},
	}
	for t, count := range metaByType {
		plan.Metadata[string(t)] = count
	}
	for _, b := range batches {
		plan.EstimatedTotalSeconds += b.EstimatedSeconds
	}
	return plan, nil
}

func splitChunks(ops []*model.Operation, max int) [][]*model.Operation {
	if max <= 0 || len(ops) <= max {
		return [][]*model.Operation{ops}
	}
	var chunks [][]*model.Operation
	for i := 0; i < len(ops); i += max {
		end := i + max
		if end > len(ops) {
			end = len(ops)
		}
		chunks = append(chunks, ops[i:end])
	}
	return chunks
}

func estimateBatch(ops []*model.Operation) float64 {
	max := 0.0
	for _, op := range ops {
		if e := durationEstimate[op.OperationType]; e > max {
			max = e
		}
	}
	return max
}

func maxBatchLen(batches []*model.ExecutionBatch) int {
	max := 0
	for _, b := range batches {
		if len(b.Operations) > max {
			max = len(b.Operations)
		}
	}
	return max
}

// optimize reorders operations within a single batch by
// (operation_type, object_type, row_id) for deterministic, locality-friendly
// execution order. It never reorders across batches.
func optimize(ops []*model.Operation) {
	sort.Slice(ops, func(i, j int) bool {
		a, b := ops[i], ops[j]
		if a.OperationType != b.OperationType {
			return a.OperationType < b.OperationType
		}
		if a.ObjectType != b.ObjectType {
			return a.ObjectType < b.ObjectType
		}
		return a.RowID < b.RowID
	})
}
