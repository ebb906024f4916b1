package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kalambet/fundscout/internal/storage"
)

// Document is the indexed text of one entity record.
type Document struct {
	ID       string
	Text     string
	Metadata Metadata
}

// Metadata travels with each document through search results and tool calls.
type Metadata struct {
	EntityName  string `json:"entity_name"`
	SourceIndex int    `json:"source_index"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// DocumentID is the stable document id of the company at sourceIndex.
func DocumentID(sourceIndex int) string {
	return fmt.Sprintf("company:%d", sourceIndex)
}

// CompanyDocument renders the canonical indexed text of a company.
func CompanyDocument(c storage.Company) Document {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\n", strings.TrimSpace(c.CompanyName))
	fmt.Fprintf(&b, "Sector: %s\n", strings.TrimSpace(c.Sector))
	fmt.Fprintf(&b, "Description: %s", strings.TrimSpace(c.Description))
	if v := strings.TrimSpace(c.Series); v != "" {
		fmt.Fprintf(&b, "\nSeries: %s", v)
	}
	if v := strings.TrimSpace(c.FundingAmount); v != "" {
		fmt.Fprintf(&b, "\nFunding: %s", v)
	}
	if names := c.InvestorNames(); len(names) > 0 {
		fmt.Fprintf(&b, "\nInvestors: %s", strings.Join(names, ", "))
	}

	return Document{
		ID:   DocumentID(c.SourceIndex),
		Text: b.String(),
		Metadata: Metadata{
			EntityName:  c.CompanyName,
			SourceIndex: c.SourceIndex,
			Timestamp:   c.Date,
		},
	}
}

// TextHash identifies the embedding input. It covers the model name so that
// switching models forces re-embedding.
func TextHash(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
