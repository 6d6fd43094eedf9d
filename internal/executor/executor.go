package executor

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	recerr "github.com/DoesN0tCompute/bamreconciler/internal/errors"
	"github.com/DoesN0tCompute/bamreconciler/internal/ipamclient"
	"github.com/DoesN0tCompute/bamreconciler/internal/logging"
	"github.com/DoesN0tCompute/bamreconciler/internal/model"
	"github.com/DoesN0tCompute/bamreconciler/internal/persistence"
	"github.com/DoesN0tCompute/bamreconciler/internal/resolvercache"
	"github.com/DoesN0tCompute/bamreconciler/internal/throttle"
	"github.com/sirupsen/logrus"
)

var tracer = otel.Tracer("bamreconciler/executor")

// OperationResult is the outcome of dispatching a single operation.
type OperationResult struct {
	NodeID     string
	Success    bool
	ResourceID *int64
	ErrorMsg   string
	LatencyMS  float64
	Metadata   map[string]any
}

// Options configures an Executor.
type Options struct {
	SessionID           string
	InputHash           string
	DryRun              bool
	AllowDangerousDelete bool
}

// Executor drives an ExecutionPlan to completion.
type Executor struct {
	registry *Registry
	throttle *throttle.Throttle
	store    persistence.Store // nil disables persistence (e.g. dry run)
	cache    resolvercache.Cache
	log      *logrus.Logger

	mu          sync.Mutex
	created     *createdMaps
	nodeIndex   map[string]*model.Operation
	skipSet     map[string]struct{}
	failedNodes map[string]struct{}
	stats       Statistics
}

// Statistics summarizes a completed (or in-progress) execution run.
type Statistics struct {
	Total      int
	Succeeded  int
	Failed     int
	Skipped    int
	ByType     map[model.OperationType]int
}

func New(registry *Registry, th *throttle.Throttle, store persistence.Store, cache resolvercache.Cache, log *logrus.Logger) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{
		registry: registry, throttle: th, store: store, cache: cache, log: log,
		created: newCreatedMaps(), skipSet: map[string]struct{}{}, failedNodes: map[string]struct{}{},
		stats: Statistics{ByType: map[model.OperationType]int{}},
	}
}

// PreloadCreatedResources seeds the in-memory created-resource maps from a
// prior session, enabling deferred references to resolve without contacting
// the server across a resume boundary.
func (e *Executor) PreloadCreatedResources(loaded map[model.CreatedResourceType]map[string]int64) {
	for t, keys := range loaded {
		var dest map[string]int64
		switch t {
		case model.CreatedBlock:
			dest = e.created.blocks
		case model.CreatedNetwork:
			dest = e.created.networks
		case model.CreatedZone:
			dest = e.created.zones
		case model.CreatedLocation:
			dest = e.created.locations
		case model.CreatedDeviceType:
			dest = e.created.deviceTypes
		case model.CreatedDeviceSubtype:
			dest = e.created.deviceSubtypes
		case model.CreatedDevice:
			dest = e.created.devices
		default:
			continue
		}
		for k, v := range keys {
			dest[k] = v
		}
	}
}

// ExecutePlan runs plan to completion, executing every batch in order from
// the first.
func (e *Executor) ExecutePlan(ctx context.Context, plan *model.ExecutionPlan, opts Options) ([]OperationResult, error) {
	ctx, span := tracer.Start(ctx, "execute_plan", trace.WithAttributes(attribute.String("session_id", opts.SessionID)))
	defer span.End()

	e.mu.Lock()
	e.nodeIndex = make(map[string]*model.Operation)
	for _, batch := range plan.Batches {
		for _, op := range batch.Operations {
			e.nodeIndex[op.NodeID()] = op
		}
	}
	e.mu.Unlock()

	var all []OperationResult
	for _, batch := range plan.Batches {
		results := e.executeBatch(ctx, batch, opts)
		all = append(all, results...)

		if !opts.DryRun && e.store != nil {
			cp := &model.Checkpoint{
				SessionID: opts.SessionID, Timestamp: time.Now(), BatchID: batch.BatchID,
				CompletedOperations: len(all), TotalOperations: plan.TotalOperations,
				Status: model.SessionInProgress, InputHash: opts.InputHash, Metadata: map[string]any{},
			}
			if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
				e.log.WithFields(logging.PersistenceFields(opts.SessionID).Logrus()).WithError(err).Warn("checkpoint save failed")
			}
		}
	}
	return all, nil
}

func (e *Executor) executeBatch(ctx context.Context, batch *model.ExecutionBatch, opts Options) []OperationResult {
	ctx, span := tracer.Start(ctx, "execute_batch", trace.WithAttributes(attribute.Int("batch_id", batch.BatchID)))
	defer span.End()

	results := make([]OperationResult, len(batch.Operations))
	g, gctx := errgroup.WithContext(ctx)
	for i, op := range batch.Operations {
		i, op := i, op
		g.Go(func() error {
			results[i] = e.executeOperation(gctx, op, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Executor) executeOperation(ctx context.Context, op *model.Operation, opts Options) OperationResult {
	return e.executeOperationAttempt(ctx, op, opts, false)
}

// executeOperationAttempt runs op once; retried distinguishes the one-shot
// rate-limit retry from the initial attempt so a persistently rate-limited
// server cannot loop this operation forever.
func (e *Executor) executeOperationAttempt(ctx context.Context, op *model.Operation, opts Options, retried bool) OperationResult {
	ctx, span := tracer.Start(ctx, "execute_operation", trace.WithAttributes(
		attribute.String("object_type", string(op.ObjectType)),
		attribute.String("row_id", op.RowID),
	))
	defer span.End()

	e.mu.Lock()
	_, skipped := e.skipSet[op.NodeID()]
	e.mu.Unlock()
	if skipped || op.Status == model.StatusSkipped {
		return OperationResult{NodeID: op.NodeID(), Success: false, Metadata: map[string]any{"skipped": true}}
	}

	if errVal, ok := op.Payload["error"]; ok {
		e.markFailedAndCascade(op, fmt.Sprint(errVal))
		return OperationResult{NodeID: op.NodeID(), Success: false, ErrorMsg: fmt.Sprint(errVal)}
	}

	e.mu.Lock()
	payload, err := resolveDeferred(op, e.created)
	e.mu.Unlock()
	if err != nil {
		e.markFailedAndCascade(op, err.Error())
		return OperationResult{NodeID: op.NodeID(), Success: false, ErrorMsg: err.Error()}
	}
	working := op.Clone()
	working.Payload = payload

	if err := e.throttle.Acquire(ctx); err != nil {
		e.markFailedAndCascade(op, err.Error())
		return OperationResult{NodeID: op.NodeID(), Success: false, ErrorMsg: err.Error()}
	}
	defer e.throttle.Release()

	start := time.Now()
	result := e.dispatch(ctx, working, opts)
	latency := float64(time.Since(start).Milliseconds())
	result.LatencyMS = latency

	if rle, ok := result.Metadata["rate_limit_retry_after"].(float64); ok && !retried {
		e.throttle.RecordFailure(true)
		select {
		case <-time.After(time.Duration(rle * float64(time.Second))):
		case <-ctx.Done():
			return result
		}
		return e.executeOperationAttempt(ctx, op, opts, true)
	}

	if result.Success {
		e.throttle.RecordSuccess(latency)
		op.Status = model.StatusSucceeded
		if working.OperationType == model.OpCreate && result.ResourceID != nil {
			e.mu.Lock()
			resourceType, key, ok := recordCreated(e.created, working, *result.ResourceID)
			e.mu.Unlock()
			if ok && !opts.DryRun && e.store != nil {
				_ = e.store.SaveCreatedResource(ctx, &model.CreatedResource{
					SessionID: opts.SessionID, ResourceType: resourceType, ResourceKey: key,
					BamID: *result.ResourceID, CreatedAt: time.Now(),
				})
			}
		}
		if path, ok := working.Payload["resource_path"].(string); ok && e.cache != nil {
			e.cache.Invalidate(ctx, path, string(working.ObjectType))
			if parent := resolvercache.ParentOf(path); parent != "" {
				e.cache.Invalidate(ctx, parent, string(working.ObjectType))
			}
		}
	} else {
		e.throttle.RecordFailure(false)
		e.markFailedAndCascade(op, result.ErrorMsg)
	}

	if !opts.DryRun && e.store != nil {
		_ = e.store.RecordChange(ctx, &model.ChangeLogEntry{
			SessionID: opts.SessionID, Timestamp: time.Now(), RowID: op.RowID, ObjectType: op.ObjectType,
			OperationType: op.OperationType, Success: result.Success, ResourceID: result.ResourceID,
			ErrorMessage: result.ErrorMsg, BeforeState: op.BeforeState, AfterState: working.Payload,
		})
	}

	e.mu.Lock()
	e.stats.Total++
	e.stats.ByType[op.OperationType]++
	if result.Success {
		e.stats.Succeeded++
	} else {
		e.stats.Failed++
	}
	e.mu.Unlock()

	return result
}

func (e *Executor) dispatch(ctx context.Context, op *model.Operation, opts Options) OperationResult {
	var result OperationResult
	switch op.OperationType {
	case model.OpNoop:
		return OperationResult{NodeID: op.NodeID(), Success: true, ResourceID: op.ResourceID, Metadata: map[string]any{}}
	case model.OpOrphan:
		return OperationResult{NodeID: op.NodeID(), Success: true, Metadata: map[string]any{}}
	case model.OpCreate:
		result = e.dispatchCreate(ctx, op, opts)
	case model.OpUpdate:
		result = e.dispatchUpdate(ctx, op)
	case model.OpDelete:
		result = e.dispatchDelete(ctx, op, opts)
	default:
		return OperationResult{NodeID: op.NodeID(), Success: false, ErrorMsg: "unknown operation type"}
	}
	return result
}

// asRateLimit surfaces a *ipamclient.RateLimitError as retry metadata so
// executeOperation can sleep and retry regardless of which operation type
// the handler call came from.
func asRateLimit(err error, result OperationResult) OperationResult {
	if rle, ok := err.(*ipamclient.RateLimitError); ok {
		if result.Metadata == nil {
			result.Metadata = map[string]any{}
		}
		result.Metadata["rate_limit_retry_after"] = rle.RetryAfterSeconds
	}
	return result
}

func (e *Executor) dispatchCreate(ctx context.Context, op *model.Operation, opts Options) OperationResult {
	if opts.DryRun {
		id := syntheticID(op.RowID)
		return OperationResult{NodeID: op.NodeID(), Success: true, ResourceID: &id, Metadata: map[string]any{"dry_run": true}}
	}
	handler, ok := e.registry.For(op.ObjectType)
	if !ok {
		return OperationResult{NodeID: op.NodeID(), Success: false, ErrorMsg: "no handler registered for " + string(op.ObjectType)}
	}
	id, err := handler.Create(ctx, op)
	if err != nil {
		if recerr.Is(err, recerr.KindResourceExists) {
			existingID, found, lookupErr := handler.LookupByNaturalKey(ctx, op)
			if lookupErr == nil && found {
				return OperationResult{NodeID: op.NodeID(), Success: true, ResourceID: &existingID, Metadata: map[string]any{"already_exists": true}}
			}
			return asRateLimit(err, OperationResult{NodeID: op.NodeID(), Success: false, ErrorMsg: err.Error()})
		}
		return asRateLimit(err, OperationResult{NodeID: op.NodeID(), Success: false, ErrorMsg: err.Error()})
	}
	return OperationResult{NodeID: op.NodeID(), Success: true, ResourceID: &id, Metadata: map[string]any{}}
}

func (e *Executor) dispatchUpdate(ctx context.Context, op *model.Operation) OperationResult {
	handler, ok := e.registry.For(op.ObjectType)
	if !ok {
		return OperationResult{NodeID: op.NodeID(), Success: false, ErrorMsg: "no handler registered for " + string(op.ObjectType)}
	}
	if err := handler.Update(ctx, op); err != nil {
		return asRateLimit(err, OperationResult{NodeID: op.NodeID(), Success: false, ErrorMsg: err.Error()})
	}
	return OperationResult{NodeID: op.NodeID(), Success: true, ResourceID: op.ResourceID, Metadata: map[string]any{}}
}

func (e *Executor) dispatchDelete(ctx context.Context, op *model.Operation, opts Options) OperationResult {
	handler, ok := e.registry.For(op.ObjectType)
	if !ok {
		return OperationResult{NodeID: op.NodeID(), Success: false, ErrorMsg: "no handler registered for " + string(op.ObjectType)}
	}
	if opts.AllowDangerousDelete {
		if op.Payload == nil {
			op.Payload = map[string]any{}
		}
		op.Payload["allow_dangerous_delete"] = true
	}
	if err := handler.Delete(ctx, op); err != nil {
		return asRateLimit(err, OperationResult{NodeID: op.NodeID(), Success: false, ErrorMsg: err.Error()})
	}
	return OperationResult{NodeID: op.NodeID(), Success: true, Metadata: map[string]any{}}
}

// markFailedAndCascade marks op FAILED and DFS-marks every node reachable
// through op's Dependents as SKIPPED, so no operation whose transitive
// ancestor failed is ever dispatched.
func (e *Executor) markFailedAndCascade(op *model.Operation, reason string) {
	op.Status = model.StatusFailed
	op.ErrorMessage = reason

	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedNodes[op.NodeID()] = struct{}{}

	var stack []string
	for dependent := range op.Dependents {
		stack = append(stack, dependent)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, already := e.skipSet[id]; already {
			continue
		}
		e.skipSet[id] = struct{}{}
		e.stats.Skipped++

		dependent, ok := e.nodeIndex[id]
		if !ok {
			continue
		}
		if dependent.Status != model.StatusSucceeded && dependent.Status != model.StatusFailed {
			dependent.Status = model.StatusSkipped
		}
		for next := range dependent.Dependents {
			stack = append(stack, next)
		}
	}
}

// syntheticID derives a deterministic, non-zero dry-run id from rowID so
// downstream deferred resolution can still proceed without contacting the
// server.
func syntheticID(rowID string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(rowID))
	v := int64(h.Sum32() % 1_000_000)
	if v == 0 {
		v = 1
	}
	return v
}

// Stats returns a snapshot of the run's statistics so far.
func (e *Executor) Stats() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	byType := make(map[model.OperationType]int, len(e.stats.ByType))
	for k, v := range e.stats.ByType {
		byType[k] = v
	}
	return Statistics{Total: e.stats.Total, Succeeded: e.stats.Succeeded, Failed: e.stats.Failed, Skipped: e.stats.Skipped, ByType: byType}
}
