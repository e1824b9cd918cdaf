package archival

import (
	"context"

	"github.com/winhok/QAchatBot-sub001/tool"
	"github.com/winhok/QAchatBot-sub001/tool/function"
)

type insertArgs struct {
	Content    string   `json:"content" description:"The information to remember."`
	Context    string   `json:"context,omitempty" description:"Where or why this was learned."`
	Tags       []string `json:"tags,omitempty" description:"Labels for later filtering."`
	Importance float64  `json:"importance,omitempty" description:"Relative importance from 0 to 1."`
}

type searchArgs struct {
	Query string `json:"query" description:"What to look for."`
	TopK  int    `json:"top_k,omitempty" description:"Maximum number of results. Defaults to 10."`
}

type insertReply struct {
	ID string `json:"id"`
}

// Tools returns the agent-facing archival memory tools bound to one user.
func Tools(service *Service, userID string) []tool.CallableTool {
	insertTool := function.New(
		func(ctx context.Context, args insertArgs) (*insertReply, error) {
			entry, err := service.Insert(ctx, userID, args.Content, args.Context, args.Tags, args.Importance)
			if err != nil {
				return nil, err
			}
			return &insertReply{ID: entry.ID}, nil
		},
		function.WithName("archival_memory_insert"),
		function.WithDescription("Store a fact in long-term archival memory."),
	)
	searchTool := function.New(
		func(ctx context.Context, args searchArgs) ([]SearchResult, error) {
			return service.Search(ctx, userID, args.Query, args.TopK)
		},
		function.WithName("archival_memory_search"),
		function.WithDescription("Search long-term archival memory by semantic similarity."),
	)
	return []tool.CallableTool{insertTool, searchTool}
}
