package exec

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/nbaghiro/flowmaestro/workflow"
)

// handleFileOperations performs filesystem operations.
//
// Config:
//   - operation: "read", "write", "append", "list", "delete" (required)
//   - path: file or directory path, relative to the registry's base dir
//   - content: data for write and append
//
// Paths are confined to the registry's base directory when one was
// configured; escaping it fails the node.
func (r *Registry) handleFileOperations(_ context.Context, req Request) workflow.Result {
	operation, _ := req.Config["operation"].(string)
	rawPath, _ := req.Config["path"].(string)
	if operation == "" || rawPath == "" {
		return failf("fileOperations %s: operation and path are required", req.Meta.NodeID)
	}

	path, err := r.resolvePath(rawPath)
	if err != nil {
		return failf("fileOperations %s: %v", req.Meta.NodeID, err)
	}

	switch operation {
	case "read":
		data, err := os.ReadFile(path)
		if err != nil {
			return failf("fileOperations %s: read: %v", req.Meta.NodeID, err)
		}
		return workflow.Result{Success: true, Output: map[string]any{
			"content": string(data),
			"size":    len(data),
		}}

	case "write", "append":
		content, _ := req.Config["content"].(string)
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if operation == "append" {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		f, err := os.OpenFile(path, flags, 0o644)
		if err != nil {
			return failf("fileOperations %s: open: %v", req.Meta.NodeID, err)
		}
		n, err := f.WriteString(content)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return failf("fileOperations %s: write: %v", req.Meta.NodeID, err)
		}
		return workflow.Result{Success: true, Output: map[string]any{
			"written": n,
			"path":    rawPath,
		}}

	case "list":
		entries, err := os.ReadDir(path)
		if err != nil {
			return failf("fileOperations %s: list: %v", req.Meta.NodeID, err)
		}
		names := make([]any, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		return workflow.Result{Success: true, Output: map[string]any{
			"entries": names,
			"count":   len(names),
		}}

	case "delete":
		if err := os.Remove(path); err != nil {
			return failf("fileOperations %s: delete: %v", req.Meta.NodeID, err)
		}
		return workflow.Result{Success: true, Output: map[string]any{
			"deleted": rawPath,
		}}

	default:
		return failf("fileOperations %s: unsupported operation %q", req.Meta.NodeID, operation)
	}
}

// resolvePath joins the raw path onto the base directory and rejects
// traversal out of it.
func (r *Registry) resolvePath(rawPath string) (string, error) {
	if r.baseDir == "" {
		return rawPath, nil
	}
	joined := filepath.Join(r.baseDir, rawPath)
	base := filepath.Clean(r.baseDir)
	if joined != base && !strings.HasPrefix(joined, base+string(filepath.Separator)) {
		return "", os.ErrPermission
	}
	return joined, nil
}
