package reconcile

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DoesN0tCompute/bamreconciler/internal/depgraph"
	"github.com/DoesN0tCompute/bamreconciler/internal/diffengine"
	"github.com/DoesN0tCompute/bamreconciler/internal/executor"
	"github.com/DoesN0tCompute/bamreconciler/internal/model"
	"github.com/DoesN0tCompute/bamreconciler/internal/planner"
	"github.com/sirupsen/logrus"
)

var tracer = otel.Tracer("bamreconciler/reconcile")

// Session drives one reconciliation run: diff every row, build the
// dependency graph, plan batches, and execute them.
type Session struct {
	Diff     *diffengine.Engine
	Resolver Resolver
	Planner  planner.Options
	Executor *executor.Executor
	Log      *logrus.Logger
}

// Plan computes the diff for every row, builds the dependency graph with
// phase barriers, and returns the resulting ExecutionPlan without executing
// it — the shape ExecutePlan(ctx, plan, opts) consumes, and what a dry-run
// preview or `session.Plan` CLI verb would call directly.
func (s *Session) Plan(ctx context.Context, rows []model.Row, orphans []diffengine.OrphanResult) (*model.ExecutionPlan, error) {
	ops, err := s.buildOperations(ctx, rows, orphans)
	if err != nil {
		return nil, err
	}
	graph, err := s.buildGraph(ctx, ops)
	if err != nil {
		return nil, err
	}
	return s.createPlan(ctx, graph)
}

// Run computes the plan and executes it to completion.
func (s *Session) Run(ctx context.Context, rows []model.Row, orphans []diffengine.OrphanResult, opts executor.Options) (*model.ExecutionPlan, []executor.OperationResult, error) {
	plan, err := s.Plan(ctx, rows, orphans)
	if err != nil {
		return nil, nil, err
	}
	results, err := s.Executor.ExecutePlan(ctx, plan, opts)
	return plan, results, err
}

func (s *Session) buildOperations(ctx context.Context, rows []model.Row, orphans []diffengine.OrphanResult) ([]*model.Operation, error) {
	ctx, span := tracer.Start(ctx, "compute_diff")
	defer span.End()
	span.SetAttributes(attribute.Int("row_count", len(rows)))

	ops := make([]*model.Operation, 0, len(rows)+len(orphans))
	for _, row := range rows {
		ops = append(ops, s.diffRow(ctx, row))
	}
	for i, orphan := range orphans {
		ops = append(ops, orphanOperation(i, orphan))
	}
	return ops, nil
}

func (s *Session) diffRow(ctx context.Context, row model.Row) *model.Operation {
	current, err := s.Resolver.Resolve(ctx, row)
	if err != nil {
		return failedOperation(row, fmt.Sprintf("resolve current state: %v", err))
	}
	diff, err := s.Diff.Compute(row, current)
	if err != nil {
		return failedOperation(row, err.Error())
	}
	return buildOperation(row, diff, current)
}

func failedOperation(row model.Row, reason string) *model.Operation {
	return &model.Operation{
		ObjectType: row.Type(), RowID: row.RowID(), OperationType: model.OpNoop,
		Payload: map[string]any{"error": reason}, CSVRow: row, Status: model.StatusPending,
		Dependencies: map[string]struct{}{}, Dependents: map[string]struct{}{},
	}
}

func buildOperation(row model.Row, diff model.DiffResult, current *diffengine.ResourceState) *model.Operation {
	payload := attrsAsPayload(row)
	if path, ok := pathAttr(row); ok {
		payload["resource_path"] = path
	}
	for k, v := range diff.Metadata {
		payload[k] = v
	}
	var before map[string]any
	if current != nil {
		before = current.Properties
	}
	return &model.Operation{
		ObjectType: row.Type(), RowID: row.RowID(), OperationType: diff.OperationType,
		ResourceID: diff.ResourceID, Payload: payload, CSVRow: row, Status: model.StatusPending,
		BeforeState:  before,
		Dependencies: map[string]struct{}{}, Dependents: map[string]struct{}{},
	}
}

// orphanOperation builds a synthetic, dependency-free operation for a
// resource present on the server but absent from the desired set; it never
// participates in the dependency graph beyond its own barrier phase.
func orphanOperation(index int, orphan diffengine.OrphanResult) *model.Operation {
	objectType := model.ObjectType(orphan.Resource.Type)
	attrs := make(map[string]string, len(orphan.Resource.Properties))
	for k, v := range orphan.Resource.Properties {
		attrs[k] = fmt.Sprint(v)
	}
	row := model.NewRow(objectType, fmt.Sprintf("orphan-%d", index), model.ActionDelete, "", attrs).WithBamID(orphan.Resource.ID)
	return &model.Operation{
		ObjectType: objectType, RowID: row.RowID(), OperationType: orphan.Diff.OperationType,
		ResourceID: orphan.Diff.ResourceID, Payload: map[string]any{}, CSVRow: row, Status: model.StatusPending,
		Dependencies: map[string]struct{}{}, Dependents: map[string]struct{}{},
	}
}

func attrsAsPayload(row model.Row) map[string]any {
	type attrSource interface {
		AllAttrs() map[string]string
	}
	out := map[string]any{}
	if src, ok := row.(attrSource); ok {
		for k, v := range src.AllAttrs() {
			out[k] = v
		}
	}
	return out
}

func (s *Session) buildGraph(ctx context.Context, ops []*model.Operation) (*depgraph.Graph, error) {
	_, span := tracer.Start(ctx, "build_from_operations")
	defer span.End()
	span.SetAttributes(attribute.Int("operation_count", len(ops)))

	g := depgraph.New(s.Log)
	for _, op := range ops {
		g.AddNode(op)
	}
	if err := g.AutoDetect(ops); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := g.ApplyPhaseBarriers(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := g.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return g, nil
}

func (s *Session) createPlan(ctx context.Context, g *depgraph.Graph) (*model.ExecutionPlan, error) {
	_, span := tracer.Start(ctx, "create_plan", trace.WithAttributes())
	defer span.End()
	plan, err := planner.Build(g, s.Planner)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("batch_count", len(plan.Batches)), attribute.Int("total_operations", plan.TotalOperations))
	return plan, nil
}
