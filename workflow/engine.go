package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbaghiro/flowmaestro/workflow/emit"
	"github.com/nbaghiro/flowmaestro/workflow/store"
)

// RunStatus is the terminal disposition of one Run or Resume call.
type RunStatus string

// Run dispositions.
const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunPaused    RunStatus = "paused"
)

// RunRequest describes one workflow execution.
type RunRequest struct {
	// ExecutionID uniquely identifies this execution. Required; it keys the
	// event channel, credit reservation, and snapshots.
	ExecutionID string

	// Workflow is the validated graph produced by Build.
	Workflow *BuiltWorkflow

	// Inputs are the trigger inputs, addressable in templates by key.
	Inputs map[string]any

	// WorkspaceID scopes credit accounting. Empty disables it.
	WorkspaceID string

	// UserID is forwarded to executors for attribution.
	UserID string
}

// ResumeRequest describes resumption of a paused execution.
type ResumeRequest struct {
	// Workflow must be the same graph the execution paused with.
	Workflow *BuiltWorkflow

	// Snapshot is the paused state to restore. When zero-valued, the engine
	// loads the latest snapshot for ExecutionID from its snapshot store.
	Snapshot store.Snapshot

	// ExecutionID selects the stored snapshot when Snapshot is zero-valued.
	ExecutionID string

	// Inputs are merged into the restored context's inputs; they take
	// precedence on key conflict. The pause context's variableName is the
	// conventional key.
	Inputs map[string]any

	// WorkspaceID and UserID default to the identity recorded in the
	// snapshot when left empty, keeping credit accounting attached to the
	// workspace the run started under.
	WorkspaceID string
	UserID      string
}

// RunResult is the outcome of one Run or Resume call.
//
// Node-level failures are domain outcomes, not Go errors: a run whose only
// failure is in a non-critical branch still returns Status == RunCompleted
// with Success true when at least one output node completed. The returned
// error is reserved for conditions that prevented orderly execution
// (insufficient credits, cancellation, step budget, invariant violations).
type RunResult struct {
	ExecutionID string
	Status      RunStatus

	// Success reports whether at least one output node completed.
	Success bool

	// Error is the user-facing failure description when Success is false.
	Error string

	// Outputs holds each completed output node's value keyed by node name.
	Outputs map[string]any

	// NodeOutputs is the full per-node output map, always populated for
	// debugging even on failure.
	NodeOutputs map[string]any

	// Failures maps failed node IDs to their recorded error messages.
	Failures map[string]string

	// ExecutionOrder lists node IDs in outcome-application order.
	ExecutionOrder []string

	// AccumulatedCredits is the total accrued against this run.
	AccumulatedCredits int64

	// Iterations is the total loop iterations completed across all loops.
	Iterations int

	// PauseContext is set when Status is RunPaused.
	PauseContext *PauseContext

	// Snapshot is the persisted (or persistable) state record, set whenever
	// one was built.
	Snapshot *store.Snapshot
}

// Engine executes built workflows against a NodeExecutor.
//
// An Engine is safe for concurrent use; executions are fully independent and
// share no mutable state beyond the configured credit service and sinks.
//
// Example:
//
//	wf, err := workflow.Build(def)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine, err := workflow.NewEngine(executor,
//	    workflow.WithEmitter(emitter),
//	    workflow.WithSnapshotStore(snapStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := engine.Run(ctx, workflow.RunRequest{
//	    ExecutionID: "exec-001",
//	    Workflow:    wf,
//	    Inputs:      map[string]any{"document": doc},
//	})
type Engine struct {
	executor NodeExecutor
	cfg      engineConfig

	mu     sync.Mutex
	active map[string]*atomic.Bool // executionID -> cancel requested
}

// NewEngine creates an engine around the given executor.
func NewEngine(executor NodeExecutor, opts ...Option) (*Engine, error) {
	if executor == nil {
		return nil, &EngineError{Message: "node executor is required", Code: "INVALID_EXECUTOR"}
	}
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	return &Engine{
		executor: executor,
		cfg:      cfg,
		active:   make(map[string]*atomic.Bool),
	}, nil
}

// Cancel requests cancellation of a running execution. After the in-flight
// batch drains, remaining pending and ready nodes are skipped without
// dispatch and credits finalize with the total accrued so far.
//
// Returns false when no execution with the given ID is currently running.
func (e *Engine) Cancel(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	flag, ok := e.active[executionID]
	if !ok {
		return false
	}
	flag.Store(true)
	return true
}

// Run executes a workflow from its trigger to a terminal state or pause.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.Workflow == nil {
		return nil, &EngineError{Message: "workflow is required", Code: "INVALID_REQUEST"}
	}
	if req.ExecutionID == "" {
		return nil, &EngineError{Message: "execution id is required", Code: "INVALID_REQUEST"}
	}

	rs := &runState{
		wf:          req.Workflow,
		executionID: req.ExecutionID,
		workspaceID: req.WorkspaceID,
		userID:      req.UserID,
		channel:     "execution:" + req.ExecutionID,
		loopStates:  make(map[string]int),
	}
	rs.execCtx = NewExecutionContext(req.Inputs, Metadata{
		ExecutionID: req.ExecutionID,
		WorkflowID:  req.Workflow.ID,
		WorkspaceID: req.WorkspaceID,
		UserID:      req.UserID,
		StartedAt:   e.cfg.now(),
	})
	rs.queue = InitializeQueue(req.Workflow)
	rs.tracker = newCreditTracker(e.cfg.creditService, req.WorkspaceID, req.ExecutionID)

	cancelFlag := e.register(req.ExecutionID)
	defer e.unregister(req.ExecutionID)
	rs.cancelled = cancelFlag

	e.emitEvent(rs, emit.ExecutionStarted, "", map[string]any{
		"workflowId": req.Workflow.ID,
	})

	estimate := EstimateWorkflow(req.Workflow)
	if err := rs.tracker.preflight(ctx, estimate.TotalCredits, e.cfg.skipCreditCheck); err != nil {
		return e.failBeforeDispatch(rs, err)
	}

	return e.loop(ctx, rs)
}

// Resume restores a paused execution and re-enters the scheduler loop.
// Nodes completed before the pause are never re-executed.
func (e *Engine) Resume(ctx context.Context, req ResumeRequest) (*RunResult, error) {
	if req.Workflow == nil {
		return nil, &EngineError{Message: "workflow is required", Code: "INVALID_REQUEST"}
	}
	snap := req.Snapshot
	if snap.ExecutionID == "" {
		if e.cfg.snapshotStore == nil {
			return nil, &EngineError{Message: "no snapshot supplied and no snapshot store configured", Code: "INVALID_REQUEST"}
		}
		if req.ExecutionID == "" {
			return nil, &EngineError{Message: "execution id is required to load a snapshot", Code: "INVALID_REQUEST"}
		}
		loaded, err := e.cfg.snapshotStore.Latest(ctx, req.ExecutionID)
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		snap = loaded
	}

	pause, err := pauseContextFromMap(snap.PauseContext)
	if err != nil {
		return nil, err
	}

	workspaceID := req.WorkspaceID
	if workspaceID == "" {
		workspaceID = snap.WorkspaceID
	}
	userID := req.UserID
	if userID == "" {
		userID = snap.UserID
	}

	rs := &runState{
		wf:          req.Workflow,
		executionID: snap.ExecutionID,
		workspaceID: workspaceID,
		userID:      userID,
		channel:     "execution:" + snap.ExecutionID,
		loopStates:  make(map[string]int, len(snap.LoopStates)),
	}
	for id, n := range snap.LoopStates {
		rs.loopStates[id] = n
	}
	rs.execCtx = restoreContext(snap, Metadata{
		ExecutionID: snap.ExecutionID,
		WorkflowID:  req.Workflow.ID,
		WorkspaceID: workspaceID,
		UserID:      userID,
		ResumedAt:   e.cfg.now(),
	})
	if len(req.Inputs) > 0 {
		rs.execCtx = rs.execCtx.WithInputs(req.Inputs)
	}
	rs.queue = RestoreQueue(req.Workflow, snap.NodeOutputs, snap.FailureReasons, snap.SkippedNodes)
	rs.tracker = newCreditTracker(e.cfg.creditService, workspaceID, snap.ExecutionID)

	cancelFlag := e.register(snap.ExecutionID)
	defer e.unregister(snap.ExecutionID)
	rs.cancelled = cancelFlag

	// Continue the tick sequence from where the pause left off so the
	// stream stays monotonic across suspension.
	if pause != nil {
		rs.tick.Store(pause.PausedAt)
	}

	e.emitEvent(rs, emit.ExecutionResumed, "", map[string]any{
		"workflowId": req.Workflow.ID,
	})

	// Fresh reservation covering only the remaining work.
	if err := rs.tracker.preflight(ctx, estimateRemaining(req.Workflow, rs.queue), e.cfg.skipCreditCheck); err != nil {
		return e.failBeforeDispatch(rs, err)
	}

	return e.loop(ctx, rs)
}

// restoreContext rebuilds an ExecutionContext from a snapshot.
func restoreContext(snap store.Snapshot, meta Metadata) *ExecutionContext {
	ec := NewExecutionContext(snap.Inputs, meta)
	for k, v := range snap.NodeOutputs {
		ec.NodeOutputs[k] = v
	}
	for k, v := range snap.Variables {
		ec.Variables[k] = v
	}
	return ec
}

// runState bundles the per-execution mutable state threaded through the
// scheduler loop. All fields except tick are touched only by the scheduling
// goroutine; tick is shared with dispatch goroutines for event ordering.
type runState struct {
	wf          *BuiltWorkflow
	executionID string
	workspaceID string
	userID      string
	channel     string

	execCtx    *ExecutionContext
	queue      *QueueState
	tracker    *creditTracker
	loopStates map[string]int
	cancelled  *atomic.Bool

	tick atomic.Int64
}

func (rs *runState) nextTick() int64 { return rs.tick.Add(1) }

// nodeOutcome pairs an executor result with its measured latency.
type nodeOutcome struct {
	result  Result
	latency time.Duration
}

// loop is the scheduler: dispatch the ready set as one bounded parallel
// batch, drain it, apply outcomes sequentially, honor pause, repeat.
func (e *Engine) loop(ctx context.Context, rs *runState) (*RunResult, error) {
	steps := 0
	for {
		if rs.cancelled.Load() || ctx.Err() != nil {
			rs.queue.CancelRemaining()
			return e.finish(ctx, rs, true)
		}
		if rs.queue.IsExecutionComplete() {
			return e.finish(ctx, rs, false)
		}

		steps++
		if steps > e.cfg.maxSteps {
			return e.abort(ctx, rs, ErrMaxStepsExceeded)
		}

		maxConcurrent := rs.wf.MaxConcurrentNodes
		if e.cfg.maxConcurrent > 0 {
			maxConcurrent = e.cfg.maxConcurrent
		}
		if maxConcurrent <= 0 {
			maxConcurrent = DefaultMaxConcurrentNodes
		}

		ready := rs.queue.ReadyNodes(rs.wf, maxConcurrent)
		if len(ready) == 0 {
			// Complete() said no, yet nothing is ready or executing: the
			// routing invariants were violated.
			return e.abort(ctx, rs, &EngineError{Message: "scheduler stalled with no ready nodes", Code: "SCHEDULER_STALLED"})
		}
		rs.queue.MarkExecuting(ready)
		e.cfg.metrics.UpdateInflightNodes(len(ready))
		e.cfg.metrics.UpdateReadyNodes(len(rs.queue.NodesInStatus(StatusReady)))

		// Loop nodes with recorded contexts are driven by the engine itself
		// and run sequentially after the parallel batch drains.
		var plain, loops []string
		for _, id := range ready {
			if rs.wf.Nodes[id].Type == NodeLoop && rs.wf.LoopContexts[id] != nil {
				loops = append(loops, id)
			} else {
				plain = append(plain, id)
			}
		}

		outcomes := make(map[string]nodeOutcome, len(ready))
		if len(plain) > 0 {
			// Every dispatch resolves templates against the same context
			// snapshot; completion order within the batch cannot change
			// what any node observed.
			snapshot := rs.execCtx
			scope := snapshot.Scope()

			var wg sync.WaitGroup
			var mu sync.Mutex
			sem := make(chan struct{}, maxConcurrent)
			for _, id := range plain {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					sem <- struct{}{}
					defer func() { <-sem }()
					oc := e.executeOne(ctx, rs, rs.wf.Nodes[id], scope, snapshot)
					mu.Lock()
					outcomes[id] = oc
					mu.Unlock()
				}(id)
			}
			wg.Wait()
		}
		for _, id := range loops {
			outcomes[id] = e.runLoop(ctx, rs, rs.wf.Nodes[id])
		}
		e.cfg.metrics.UpdateInflightNodes(0)

		// Apply outcomes in ready order so routing and pause selection are
		// deterministic regardless of completion interleaving.
		var pause *PauseContext
		for _, id := range ready {
			oc := outcomes[id]
			node := rs.wf.Nodes[id]
			if !oc.result.Success {
				msg := oc.result.Error
				if msg == "" {
					msg = "node execution failed"
				}
				rs.queue.MarkFailed(rs.wf, id, msg)
				e.cfg.metrics.IncrementNodes(StatusFailed)
				e.cfg.metrics.RecordNodeLatency(node.Type, oc.latency, "error")
				continue
			}

			next, err := rs.execCtx.WithNodeOutput(id, oc.result.Output)
			if err != nil {
				// Invariant violation in the scheduler itself.
				return e.abort(ctx, rs, &EngineError{Message: err.Error(), Code: "DUPLICATE_OUTPUT"})
			}
			rs.execCtx = next
			rs.queue.MarkCompleted(rs.wf, id, oc.result.Output)
			cost := rs.tracker.accrue(node, oc.result)
			e.cfg.metrics.AddCreditsAccrued(cost)
			e.cfg.metrics.IncrementNodes(StatusCompleted)
			e.cfg.metrics.RecordNodeLatency(node.Type, oc.latency, "success")

			if s := oc.result.Signals; s != nil && s.Pause {
				pc := s.PauseContext
				if pc == nil {
					pc = &PauseContext{Reason: "pause requested"}
				}
				if pc.NodeID == "" {
					pc.NodeID = id
				}
				if pause == nil {
					pause = pc
					if pause.PausedAt == 0 {
						pause.PausedAt = rs.nextTick()
					}
				} else {
					// Later pauses in the batch fold into the first so one
					// resume can satisfy every waiting node.
					if pause.PreservedData == nil {
						pause.PreservedData = make(map[string]any)
					}
					extra, _ := pause.PreservedData["additionalPauses"].([]any)
					pause.PreservedData["additionalPauses"] = append(extra, pc.asMap())
				}
			}
		}

		if pause != nil {
			return e.pauseRun(ctx, rs, pause)
		}
	}
}

// executeOne resolves one node's config against the batch scope and invokes
// the executor, wrapping side-effect node types in tool call events.
func (e *Engine) executeOne(ctx context.Context, rs *runState, node *Node, scope map[string]any, execCtx *ExecutionContext) nodeOutcome {
	config := ResolveTemplates(node.Config, scope)
	meta := Meta{
		ExecutionID: rs.executionID,
		NodeID:      node.ID,
		NodeName:    node.Name,
		WorkspaceID: rs.workspaceID,
		UserID:      rs.userID,
	}

	nodeCtx := ctx
	if d := nodeTimeout(node, e.cfg.defaultNodeTimeout); d > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	tool := sideEffectNodeTypes[node.Type]
	if tool {
		e.emitEvent(rs, emit.ToolCallStarted, node.ID, map[string]any{
			"nodeType": string(node.Type),
			"nodeName": node.Name,
		})
	}

	start := time.Now()
	result := e.invoke(nodeCtx, node, config, execCtx, meta)
	latency := time.Since(start)

	if tool {
		data := map[string]any{
			"nodeType": string(node.Type),
			"nodeName": node.Name,
			"success":  result.Success,
		}
		if !result.Success && result.Error != "" {
			data["error"] = result.Error
		}
		e.emitEvent(rs, emit.ToolCallCompleted, node.ID, data)
	}

	return nodeOutcome{result: result, latency: latency}
}

// invoke calls the executor, converting panics into failed results so one
// misbehaving executor cannot take down the scheduler.
func (e *Engine) invoke(ctx context.Context, node *Node, config map[string]any, execCtx *ExecutionContext, meta Meta) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Success: false, Error: fmt.Sprintf("executor panic: %v", r)}
		}
	}()
	return e.executor.ExecuteNode(ctx, node.Type, config, execCtx, meta)
}

// runLoop drives one loop node: its body subgraph executes once per
// iteration, in depth order, with the iteration variable bound in scope and
// each body output recorded under "nodeID#iteration". The loop node's own
// output reports the completed iteration count.
//
// A body failure fails the loop node at that iteration; earlier iterations'
// outputs remain in context. Pause signals from body nodes are not honored;
// a pause point belongs outside the loop body.
func (e *Engine) runLoop(ctx context.Context, rs *runState, node *Node) nodeOutcome {
	lc := rs.wf.LoopContexts[node.ID]
	start := time.Now()
	completed := rs.loopStates[node.ID]

	for i := completed; i < lc.MaxIterations; i++ {
		rs.execCtx = rs.execCtx.WithVariable(lc.IterationVar, i)

		// Within an iteration, body outputs are visible to later body nodes
		// under their plain node IDs.
		iterOutputs := make(map[string]any, len(lc.BodyNodes))
		for _, bodyID := range lc.BodyNodes {
			body := rs.wf.Nodes[bodyID]
			scope := rs.execCtx.Scope()
			for id, out := range iterOutputs {
				scope[id] = out
			}

			oc := e.executeOne(ctx, rs, body, scope, rs.execCtx)
			if !oc.result.Success {
				rs.loopStates[node.ID] = i
				e.cfg.metrics.IncrementNodes(StatusFailed)
				e.cfg.metrics.RecordNodeLatency(body.Type, oc.latency, "error")
				msg := fmt.Sprintf("loop body %s failed at iteration %d", body.Name, i)
				if oc.result.Error != "" {
					msg += ": " + oc.result.Error
				}
				return nodeOutcome{
					result:  Result{Success: false, Error: msg},
					latency: time.Since(start),
				}
			}

			iterOutputs[bodyID] = oc.result.Output
			next, err := rs.execCtx.WithNodeOutput(fmt.Sprintf("%s#%d", bodyID, i), oc.result.Output)
			if err != nil {
				return nodeOutcome{
					result:  Result{Success: false, Error: err.Error()},
					latency: time.Since(start),
				}
			}
			rs.execCtx = next
			cost := rs.tracker.accrue(body, oc.result)
			e.cfg.metrics.AddCreditsAccrued(cost)
			e.cfg.metrics.IncrementNodes(StatusCompleted)
			e.cfg.metrics.RecordNodeLatency(body.Type, oc.latency, "success")
		}
		rs.loopStates[node.ID] = i + 1
	}

	return nodeOutcome{
		result: Result{
			Success: true,
			Output:  map[string]any{"iterations": rs.loopStates[node.ID]},
		},
		latency: time.Since(start),
	}
}

// pauseRun suspends the execution: credits finalize against the accrued
// total, a pause snapshot is built (and persisted when a store is
// configured), and the paused event is emitted as the stream's last event
// until resumption.
func (e *Engine) pauseRun(ctx context.Context, rs *runState, pause *PauseContext) (*RunResult, error) {
	finErr := rs.tracker.finalize(ctx)

	snap := buildSnapshot(rs.wf, rs.execCtx, rs.queue, store.SnapshotPause, pause, rs.loopStates, e.cfg.now())
	var saveErr error
	if e.cfg.snapshotStore != nil {
		saveErr = e.cfg.snapshotStore.Save(ctx, snap)
	}

	e.emitEvent(rs, emit.ExecutionPaused, pause.NodeID, map[string]any{
		"pauseContext":       pause.asMap(),
		"progress":           snap.Progress,
		"accumulatedCredits": rs.tracker.total(),
	})
	e.cfg.metrics.IncrementExecutions("paused")

	res := &RunResult{
		ExecutionID:        rs.executionID,
		Status:             RunPaused,
		NodeOutputs:        rs.execCtx.NodeOutputs,
		Failures:           failureMap(rs.queue),
		ExecutionOrder:     rs.queue.ExecutionOrder(),
		AccumulatedCredits: rs.tracker.total(),
		Iterations:         totalIterations(rs.loopStates),
		PauseContext:       pause,
		Snapshot:           &snap,
	}
	return res, errors.Join(finErr, saveErr)
}

// finish settles a run that reached a terminal queue state (or cancellation).
func (e *Engine) finish(ctx context.Context, rs *runState, cancelled bool) (*RunResult, error) {
	finErr := rs.tracker.finalize(ctx)

	outputs := rs.execCtx.FinalOutputs(rs.wf)
	success := !cancelled && len(outputs) > 0
	failures := failureMap(rs.queue)

	errMsg := ""
	if cancelled {
		errMsg = "execution cancelled"
	} else if !success {
		errMsg = terminalError(rs)
	}

	snapType := store.SnapshotFinal
	outcome := "completed"
	event := emit.ExecutionCompleted
	if !success {
		snapType = store.SnapshotFailure
		event = emit.ExecutionFailed
		outcome = "failed"
		if cancelled {
			outcome = "cancelled"
		}
	}

	snap := buildSnapshot(rs.wf, rs.execCtx, rs.queue, snapType, nil, rs.loopStates, e.cfg.now())
	var saveErr error
	if e.cfg.snapshotStore != nil {
		saveErr = e.cfg.snapshotStore.Save(ctx, snap)
	}

	data := map[string]any{
		"success":            success,
		"accumulatedCredits": rs.tracker.total(),
		"nodeOutputs":        rs.execCtx.NodeOutputs,
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	if cancelled {
		data["reason"] = "cancelled"
	}
	if n := totalIterations(rs.loopStates); n > 0 {
		data["iterations"] = n
	}
	e.emitEvent(rs, event, "", data)
	e.cfg.metrics.IncrementExecutions(outcome)

	res := &RunResult{
		ExecutionID:        rs.executionID,
		Status:             RunCompleted,
		Success:            success,
		Error:              errMsg,
		Outputs:            outputs,
		NodeOutputs:        rs.execCtx.NodeOutputs,
		Failures:           failures,
		ExecutionOrder:     rs.queue.ExecutionOrder(),
		AccumulatedCredits: rs.tracker.total(),
		Iterations:         totalIterations(rs.loopStates),
		Snapshot:           &snap,
	}
	if !success {
		res.Status = RunFailed
	}

	err := errors.Join(finErr, saveErr)
	if cancelled {
		err = errors.Join(err, ErrExecutionCancelled)
	}
	return res, err
}

// abort terminates a run on an orchestration failure: credits finalize
// against the accrued total and the failed event closes the stream.
func (e *Engine) abort(ctx context.Context, rs *runState, cause error) (*RunResult, error) {
	finErr := rs.tracker.finalize(ctx)

	e.emitEvent(rs, emit.ExecutionFailed, "", map[string]any{
		"success":            false,
		"error":              cause.Error(),
		"accumulatedCredits": rs.tracker.total(),
		"nodeOutputs":        rs.execCtx.NodeOutputs,
	})
	e.cfg.metrics.IncrementExecutions("failed")

	res := &RunResult{
		ExecutionID:        rs.executionID,
		Status:             RunFailed,
		Error:              cause.Error(),
		NodeOutputs:        rs.execCtx.NodeOutputs,
		Failures:           failureMap(rs.queue),
		ExecutionOrder:     rs.queue.ExecutionOrder(),
		AccumulatedCredits: rs.tracker.total(),
		Iterations:         totalIterations(rs.loopStates),
	}
	return res, errors.Join(cause, finErr)
}

// failBeforeDispatch terminates a run whose pre-flight was refused. No
// executor was invoked and no reservation is outstanding, so no release is
// needed; the failed event closes the stream immediately.
func (e *Engine) failBeforeDispatch(rs *runState, cause error) (*RunResult, error) {
	data := map[string]any{
		"success":            false,
		"error":              cause.Error(),
		"accumulatedCredits": int64(0),
	}
	if errors.Is(cause, ErrInsufficientCredits) {
		data["reason"] = "InsufficientCredits"
	}
	e.emitEvent(rs, emit.ExecutionFailed, "", data)
	e.cfg.metrics.IncrementExecutions("failed")

	return &RunResult{
		ExecutionID: rs.executionID,
		Status:      RunFailed,
		Error:       cause.Error(),
		NodeOutputs: rs.execCtx.NodeOutputs,
	}, cause
}

// emitEvent stamps and delivers one event on the execution's channel.
func (e *Engine) emitEvent(rs *runState, name, nodeID string, data map[string]any) {
	e.cfg.emitter.Emit(emit.Event{
		Channel:     rs.channel,
		Event:       name,
		ExecutionID: rs.executionID,
		NodeID:      nodeID,
		Data:        data,
		Timestamp:   rs.nextTick(),
	})
}

func (e *Engine) register(executionID string) *atomic.Bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	flag := &atomic.Bool{}
	e.active[executionID] = flag
	return flag
}

func (e *Engine) unregister(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, executionID)
}

// nodeTimeout resolves a node's execution bound: per-node timeoutMs config
// wins over the engine default.
func nodeTimeout(node *Node, fallback time.Duration) time.Duration {
	if node.Config != nil {
		switch v := node.Config["timeoutMs"].(type) {
		case float64:
			if v > 0 {
				return time.Duration(v) * time.Millisecond
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Millisecond
			}
		case int64:
			if v > 0 {
				return time.Duration(v) * time.Millisecond
			}
		}
	}
	return fallback
}

// terminalError composes the user-facing error for an unsuccessful run: the
// first failed node in application order, or the structural reason no output
// completed.
func terminalError(rs *runState) string {
	for _, id := range rs.queue.ExecutionOrder() {
		if rs.queue.Status(id) == StatusFailed {
			return fmt.Sprintf("Node %s failed", rs.wf.Nodes[id].Name)
		}
	}
	return "no output node completed"
}

func failureMap(q *QueueState) map[string]string {
	failures := make(map[string]string)
	for _, id := range q.NodesInStatus(StatusFailed) {
		failures[id] = q.FailureMessage(id)
	}
	return failures
}

func totalIterations(loopStates map[string]int) int {
	total := 0
	for _, n := range loopStates {
		total += n
	}
	return total
}
