package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/storage"
)

// Structured-data tool names.
const (
	SearchFundedEntitiesBySector = "search_funded_entities_by_sector"
	GetInvestorsForSector        = "get_investors_for_sector"
	ListValidSectors             = "list_valid_sectors"
	SearchCompaniesByName        = "search_companies_by_name"
)

// FundingStore is the read side of the structured company store.
type FundingStore interface {
	SearchCompaniesBySector(ctx context.Context, sector string) ([]storage.Company, error)
	InvestorsForSector(ctx context.Context, sector string) ([]storage.InvestorActivity, error)
	ListValidSectors(ctx context.Context) ([]string, error)
	SearchCompaniesByName(ctx context.Context, name string) ([]storage.Company, error)
}

type sectorArgs struct {
	Sector string `json:"sector"`
}

type nameArgs struct {
	Name string `json:"name"`
}

// FundingTools returns the structured-data lookup tools backed by store.
func FundingTools(store FundingStore) []Tool {
	sectorParams := func() *agent.Schema {
		return agent.Object(map[string]*agent.Schema{
			"sector": agent.String("Sector name, matched case-insensitively as a substring."),
		}, "sector")
	}

	return []Tool{
		{
			Name:        SearchFundedEntitiesBySector,
			Description: "List funded companies in a sector with their funding round, amount and investors.",
			Parameters:  sectorParams(),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				sector, err := sectorArg(SearchFundedEntitiesBySector, raw)
				if err != nil {
					return nil, err
				}
				companies, err := store.SearchCompaniesBySector(ctx, sector)
				if err != nil {
					return nil, err
				}
				return nonNil(companies), nil
			},
		},
		{
			Name:        GetInvestorsForSector,
			Description: "Aggregate investor activity for a sector: each investor with the number and names of companies they backed, most active first.",
			Parameters:  sectorParams(),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				sector, err := sectorArg(GetInvestorsForSector, raw)
				if err != nil {
					return nil, err
				}
				investors, err := store.InvestorsForSector(ctx, sector)
				if err != nil {
					return nil, err
				}
				return nonNil(investors), nil
			},
		},
		{
			Name:        ListValidSectors,
			Description: "List the sector names known to the company database.",
			Parameters:  agent.Object(nil),
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				sectors, err := store.ListValidSectors(ctx)
				if err != nil {
					return nil, err
				}
				return nonNil(sectors), nil
			},
		},
		{
			Name:        SearchCompaniesByName,
			Description: "Find companies whose name contains the given text.",
			Parameters: agent.Object(map[string]*agent.Schema{
				"name": agent.String("Company name or part of it."),
			}, "name"),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				args, err := decodeArgs[nameArgs](SearchCompaniesByName, raw)
				if err != nil {
					return nil, err
				}
				name := strings.TrimSpace(args.Name)
				if name == "" {
					return nil, &agent.ToolInvocationError{Tool: SearchCompaniesByName, Reason: "name must not be empty"}
				}
				companies, err := store.SearchCompaniesByName(ctx, name)
				if err != nil {
					return nil, err
				}
				return nonNil(companies), nil
			},
		},
	}
}

func sectorArg(tool string, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[sectorArgs](tool, raw)
	if err != nil {
		return "", err
	}
	sector := strings.TrimSpace(args.Sector)
	if sector == "" {
		return "", &agent.ToolInvocationError{Tool: tool, Reason: "sector must not be empty"}
	}
	return sector, nil
}

// nonNil keeps empty results encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
