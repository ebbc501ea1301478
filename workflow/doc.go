// Package workflow provides the core workflow execution engine for FlowMaestro.
//
// A workflow is a directed acyclic graph (with bounded looping) of typed nodes:
// LLM calls, HTTP requests, data transforms, conditionals, switches, loops,
// human-in-the-loop pauses, database operations, and nested agent invocations.
// The engine carries typed data from a trigger input through dependent nodes to
// one or more output nodes.
//
// The package is organized around a few cooperating pieces:
//
//   - Builder validates a raw Definition and produces a BuiltWorkflow: the
//     dependency graph, depths, execution levels, and loop contexts.
//   - ExecutionContext is an immutable-snapshot store of node outputs, user
//     inputs, and variables, with {{Node.path}} template substitution.
//   - QueueState tracks per-node lifecycle (pending/ready/executing/completed/
//     failed/skipped/unreachable) and answers "what is ready?".
//   - Engine drives the queue: it pulls ready nodes, dispatches them through a
//     NodeExecutor with bounded concurrency, routes outgoing edges by handle
//     type, honors pause signals, and wraps the run in a credit reservation
//     and finalization lifecycle.
//
// Node execution is delegated to the NodeExecutor contract; the built-in
// registry in the exec subpackage covers the standard node types, and callers
// may supply their own. Observability flows through the emit subpackage and
// optional Prometheus metrics. Snapshots for pause/resume persist through the
// store subpackage.
//
// Example:
//
//	built, err := workflow.Build(def)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine, err := workflow.NewEngine(executor,
//	    workflow.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	    workflow.WithCreditService(creditSvc),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := engine.Run(ctx, workflow.RunRequest{
//	    ExecutionID: "exec-001",
//	    Workflow:    built,
//	    Inputs:      map[string]any{"query": "hello"},
//	    WorkspaceID: "ws-1",
//	})
package workflow
