package storage

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Company is one funded-company record in the structured store. SourceIndex is
// the stable position of the record in its source dataset and doubles as the
// primary key.
type Company struct {
	SourceIndex   int    `json:"source_index"`
	CompanyName   string `json:"company_name"`
	Description   string `json:"description"`
	Sector        string `json:"sector"`
	Series        string `json:"series"`
	FundingAmount string `json:"funding_amount"`
	TotalFunding  string `json:"total_funding"`
	Valuation     string `json:"valuation"`
	Investors     string `json:"investors"` // comma-separated
	FoundedYear   string `json:"founded_year"`
	URL           string `json:"url"`
	Date          string `json:"date,omitempty"`
}

// InvestorNames splits the comma-separated investor list, dropping blanks.
func (c Company) InvestorNames() []string {
	var names []string
	for _, part := range strings.Split(c.Investors, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// InvestorActivity aggregates the companies an investor backed within a sector.
type InvestorActivity struct {
	InvestorName    string   `json:"investor_name"`
	InvestmentCount int      `json:"investment_count"`
	Companies       []string `json:"companies"`
}

// Interaction is one routed query, kept as a query log.
type Interaction struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	CreatedAt  time.Time `json:"created_at"`
	Query      string    `json:"query"`
	Intent     string    `json:"intent"`
	Status     string    `json:"status"` // "completed", "failed"
	Error      string    `json:"error,omitempty"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
