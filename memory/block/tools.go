package block

import (
	"context"

	"github.com/winhok/QAchatBot-sub001/tool"
	"github.com/winhok/QAchatBot-sub001/tool/function"
)

// Tool input types. user_id is bound at construction, not exposed to the
// model.

type appendArgs struct {
	Label   string `json:"label" description:"Label of the memory block to append to."`
	Content string `json:"content" description:"Content to append to the block."`
}

type replaceArgs struct {
	Label      string `json:"label" description:"Label of the memory block to edit."`
	OldContent string `json:"old_content" description:"Exact text to replace. Must occur exactly once."`
	NewContent string `json:"new_content" description:"Replacement text."`
}

type rethinkArgs struct {
	Label     string `json:"label" description:"Label of the memory block to rewrite."`
	NewMemory string `json:"new_memory" description:"Full new content of the block."`
}

// Tools returns the agent-facing core memory tools bound to one user.
func Tools(manager *Manager, userID string) []tool.CallableTool {
	appendTool := function.New(
		func(ctx context.Context, args appendArgs) (*OpResult, error) {
			return manager.Append(ctx, userID, args.Label, args.Content)
		},
		function.WithName("core_memory_append"),
		function.WithDescription("Append content to a core memory block. Content is added on a new line."),
	)
	replaceTool := function.New(
		func(ctx context.Context, args replaceArgs) (*OpResult, error) {
			return manager.Replace(ctx, userID, args.Label, args.OldContent, args.NewContent)
		},
		function.WithName("core_memory_replace"),
		function.WithDescription("Replace text in a core memory block. The old text must match exactly once."),
	)
	rethinkTool := function.New(
		func(ctx context.Context, args rethinkArgs) (*OpResult, error) {
			return manager.Rethink(ctx, userID, args.Label, args.NewMemory)
		},
		function.WithName("core_memory_rethink"),
		function.WithDescription("Rewrite a core memory block from scratch, creating it if absent."),
	)
	return []tool.CallableTool{appendTool, replaceTool, rethinkTool}
}
