package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/strategy-eval/internal/modelhost"
	"github.com/giantswarm/strategy-eval/internal/server"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

const errNoModelHost = "model host is not configured (no cluster access or KServe not available)"

func registerModelTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// deploy_model
	deployTool := mcp.NewTool("deploy_model",
		mcp.WithDescription("Serve an open-weight model on the cluster (KServe, vLLM runtime) and wait until it is ready to be benchmarked."),
		mcp.WithString("model_name",
			mcp.Required(),
			mcp.Description("Name the model is served and benchmarked under"),
		),
		mcp.WithString("model_uri",
			mcp.Required(),
			mcp.Description("Model storage URI (e.g. 'hf://mistralai/Mistral-7B-Instruct-v0.3')"),
		),
		mcp.WithNumber("gpu_count",
			mcp.Description("Number of GPUs to request (default: 1)"),
		),
		mcp.WithArray("runtime_args",
			mcp.Description("Extra serving runtime arguments (e.g. ['--max-model-len=4096'])"),
			mcp.WithStringItems(),
		),
	)
	s.AddTool(deployTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDeployModel(ctx, request, sc)
	})

	// teardown_model
	teardownTool := mcp.NewTool("teardown_model",
		mcp.WithDescription("Stop serving a model"),
		mcp.WithString("model_name",
			mcp.Required(),
			mcp.Description("Name of the served model"),
		),
	)
	s.AddTool(teardownTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleTeardownModel(ctx, request, sc)
	})

	// list_models
	listTool := mcp.NewTool("list_models",
		mcp.WithDescription("List models served by strategy-eval and their readiness"),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListModels(ctx, request, sc)
	})

	return nil
}

func handleDeployModel(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.ModelHost == nil {
		return mcp.NewToolResultError(errNoModelHost), nil
	}

	args := request.GetArguments()

	modelName, ok := args["model_name"].(string)
	if !ok || modelName == "" {
		return mcp.NewToolResultError("model_name is required"), nil
	}

	modelURI, ok := args["model_uri"].(string)
	if !ok || modelURI == "" {
		return mcp.NewToolResultError("model_uri is required"), nil
	}

	model := testsuite.Model{Name: modelName, ModelURI: modelURI}
	if gpuCount, ok := args["gpu_count"].(float64); ok && gpuCount > 0 {
		model.GPUCount = int(gpuCount)
	}
	spec := modelhost.SpecFor(model)

	extra, err := runtimeArgs(args["runtime_args"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	spec.Args = append(spec.Args, extra...)

	ep, err := sc.ModelHost.Deploy(ctx, spec)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to deploy model: %v", err)), nil
	}

	data, err := json.MarshalIndent(ep, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal endpoint: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func runtimeArgs(raw interface{}) ([]string, error) {
	list, ok := raw.([]interface{})
	if !ok || len(list) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(list))
	for _, arg := range list {
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("runtime_args must be an array of strings")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("runtime_args entries must be non-empty strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func handleTeardownModel(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.ModelHost == nil {
		return mcp.NewToolResultError(errNoModelHost), nil
	}

	args := request.GetArguments()

	modelName, ok := args["model_name"].(string)
	if !ok || modelName == "" {
		return mcp.NewToolResultError("model_name is required"), nil
	}

	if err := sc.ModelHost.Teardown(ctx, modelName); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to teardown model: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("model %q is no longer served", modelName)), nil
}

func handleListModels(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.ModelHost == nil {
		return mcp.NewToolResultError(errNoModelHost), nil
	}

	endpoints, err := sc.ModelHost.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list models: %v", err)), nil
	}

	data, err := json.MarshalIndent(endpoints, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal endpoints: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
