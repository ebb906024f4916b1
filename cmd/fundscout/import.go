package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kalambet/fundscout/internal/storage"
)

// looseString accepts a JSON string, number, string array or null. Scraped
// datasets are not consistent about which one they use.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
	case len(data) > 0 && data[0] == '[':
		var v []string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(strings.Join(v, ", "))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string, number or string list, got %s", data)
		}
		*s = looseString(n.String())
	}
	return nil
}

type companyRecord struct {
	SourceIndex   *int        `json:"source_index"`
	CompanyName   looseString `json:"company_name"`
	Description   looseString `json:"description"`
	Sector        looseString `json:"sector"`
	Series        looseString `json:"series"`
	FundingAmount looseString `json:"funding_amount"`
	TotalFunding  looseString `json:"total_funding"`
	Valuation     looseString `json:"valuation"`
	Investors     looseString `json:"investors"`
	FoundedYear   looseString `json:"founded_year"`
	URL           looseString `json:"url"`
	Date          looseString `json:"date"`
}

// decodeCompanies reads a JSON array of company records. It returns the valid
// records and the array positions of records skipped for lacking a name.
func decodeCompanies(r io.Reader) ([]storage.Company, []int, error) {
	var records []companyRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, nil, fmt.Errorf("decoding company records (expected a JSON array): %w", err)
	}

	var (
		companies []storage.Company
		skipped   []int
		seen      = make(map[int]int)
	)
	for i, rec := range records {
		name := strings.TrimSpace(string(rec.CompanyName))
		if name == "" {
			skipped = append(skipped, i)
			continue
		}
		idx := i
		if rec.SourceIndex != nil {
			idx = *rec.SourceIndex
		}
		if prev, dup := seen[idx]; dup {
			return nil, nil, fmt.Errorf("records %d and %d share source_index %d", prev+1, i+1, idx)
		}
		seen[idx] = i

		companies = append(companies, storage.Company{
			SourceIndex:   idx,
			CompanyName:   name,
			Description:   strings.TrimSpace(string(rec.Description)),
			Sector:        strings.TrimSpace(string(rec.Sector)),
			Series:        strings.TrimSpace(string(rec.Series)),
			FundingAmount: strings.TrimSpace(string(rec.FundingAmount)),
			TotalFunding:  strings.TrimSpace(string(rec.TotalFunding)),
			Valuation:     strings.TrimSpace(string(rec.Valuation)),
			Investors:     strings.TrimSpace(string(rec.Investors)),
			FoundedYear:   strings.TrimSpace(string(rec.FoundedYear)),
			URL:           strings.TrimSpace(string(rec.URL)),
			Date:          strings.TrimSpace(string(rec.Date)),
		})
	}
	return companies, skipped, nil
}
