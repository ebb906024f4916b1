package api

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/fundscout/internal/storage"
	"github.com/kalambet/fundscout/internal/tools"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	err = store.UpsertCompanies(context.Background(), []storage.Company{
		{SourceIndex: 1, CompanyName: "Calo", Sector: "Food Delivery", Investors: "STV, Nuwa Capital"},
		{SourceIndex: 2, CompanyName: "Kitopi", Sector: "Food Delivery", Investors: "STV"},
		{SourceIndex: 3, CompanyName: "Tabby", Sector: "Fintech", Investors: "Sequoia"},
	})
	if err != nil {
		t.Fatalf("seeding companies: %v", err)
	}

	registry := tools.NewRegistry(time.Second)
	registry.MustRegister(tools.FundingTools(store)...)

	return MCPDeps{
		Tools:        registry,
		Sectors:      store,
		Interactions: store,
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestNewMCPServer_ListsRegistryTools(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	s := NewMCPServer(deps)

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var body struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}

	listed := map[string]bool{}
	for _, tool := range body.Result.Tools {
		listed[tool.Name] = true
	}
	for _, name := range deps.Tools.Names() {
		if !listed[name] {
			t.Errorf("tool %s not exposed over MCP, got %s", name, b)
		}
	}
}

func TestMCPTool_InvestorsForSector(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpInvoke(deps, tools.GetInvestorsForSector)

	result, err := handler(context.Background(), makeCallToolRequest(tools.GetInvestorsForSector, map[string]interface{}{
		"sector": "food",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var got []storage.InvestorActivity
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(got) != 2 || got[0].InvestorName != "STV" || got[0].InvestmentCount != 2 {
		t.Errorf("unexpected investors: %+v", got)
	}
}

func TestMCPTool_ValidationErrorIsToolError(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpInvoke(deps, tools.SearchFundedEntitiesBySector)

	result, err := handler(context.Background(), makeCallToolRequest(tools.SearchFundedEntitiesBySector, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected a tool error for missing sector, got %s", toolText(t, result))
	}
}

func TestMCPTool_NoArguments(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpInvoke(deps, tools.ListValidSectors)

	result, err := handler(context.Background(), makeCallToolRequest(tools.ListValidSectors, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != `["Fintech","Food Delivery","General"]` {
		t.Errorf("unexpected sectors: %s", got)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	byName := mcpInvoke(deps, tools.SearchCompaniesByName)
	bySector := mcpInvoke(deps, tools.SearchFundedEntitiesBySector)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := byName(context.Background(), makeCallToolRequest(tools.SearchCompaniesByName, map[string]interface{}{"name": "tab"})); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := bySector(context.Background(), makeCallToolRequest(tools.SearchFundedEntitiesBySector, map[string]interface{}{"sector": "fintech"})); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}

func TestMCPResource_Sectors(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	contents, err := mcpResourceSectors(deps)(context.Background(), makeReadResourceRequest("fundscout://sectors"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var sectors []string
	if err := json.Unmarshal([]byte(tc.Text), &sectors); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(sectors) != 3 {
		t.Errorf("expected 3 sectors, got %v", sectors)
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	err := store.SaveInteraction(context.Background(), storage.Interaction{
		ID:         "int-1",
		WorkflowID: "wf-1",
		CreatedAt:  time.Now().UTC(),
		Query:      "Which fintech companies raised Series B?",
		Intent:     "research",
	})
	if err != nil {
		t.Fatalf("saving interaction: %v", err)
	}

	contents, err := mcpResourceRecent(deps)(context.Background(), makeReadResourceRequest("fundscout://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var summaries []map[string]string
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 || summaries[0]["intent"] != "research" {
		t.Fatalf("unexpected interactions: %v", summaries)
	}
}
