package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	sectorSearchLimit    = 50
	investorScanLimit    = 100
	companyNameLimit     = 20
	companyColumns       = `source_index, company_name, description, sector, series, funding_amount, total_funding, valuation, investors, founded_year, url, date`
	likeEscapeCharacters = `\%_`
)

// DefaultSectors is the vocabulary used when the store has no sectors yet.
var DefaultSectors = []string{
	"Technology", "SaaS", "AI", "Fintech", "Healthcare", "E-commerce", "Food Delivery", "General",
}

// UpsertCompanies inserts or replaces company records keyed by source index.
func (s *Store) UpsertCompanies(ctx context.Context, companies []Company) error {
	if len(companies) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning company upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO companies (`+companyColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_index) DO UPDATE SET
			company_name = excluded.company_name,
			description = excluded.description,
			sector = excluded.sector,
			series = excluded.series,
			funding_amount = excluded.funding_amount,
			total_funding = excluded.total_funding,
			valuation = excluded.valuation,
			investors = excluded.investors,
			founded_year = excluded.founded_year,
			url = excluded.url,
			date = excluded.date,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing company upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range companies {
		if strings.TrimSpace(c.CompanyName) == "" {
			return fmt.Errorf("company at source index %d has no name", c.SourceIndex)
		}
		if _, err := stmt.ExecContext(ctx,
			c.SourceIndex, c.CompanyName, c.Description, c.Sector, c.Series, c.FundingAmount,
			c.TotalFunding, c.Valuation, c.Investors, c.FoundedYear, c.URL, c.Date, now,
		); err != nil {
			return fmt.Errorf("upserting company %d: %w", c.SourceIndex, err)
		}
	}
	return tx.Commit()
}

// ListCompanies returns every company ordered by source index.
func (s *Store) ListCompanies(ctx context.Context) ([]Company, error) {
	return s.queryCompanies(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY source_index ASC`)
}

func (s *Store) GetCompany(ctx context.Context, sourceIndex int) (Company, error) {
	companies, err := s.queryCompanies(ctx, `SELECT `+companyColumns+` FROM companies WHERE source_index = ?`, sourceIndex)
	if err != nil {
		return Company{}, err
	}
	if len(companies) == 0 {
		return Company{}, ErrNotFound
	}
	return companies[0], nil
}

// CountCompanies returns the number of company records.
func (s *Store) CountCompanies(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting companies: %w", err)
	}
	return n, nil
}

// SearchCompaniesBySector matches sector case-insensitively as a substring.
// At most 50 records are returned.
func (s *Store) SearchCompaniesBySector(ctx context.Context, sector string) ([]Company, error) {
	return s.queryCompanies(ctx, `
		SELECT `+companyColumns+` FROM companies
		WHERE sector LIKE ? ESCAPE '\'
		ORDER BY source_index ASC LIMIT ?`,
		likePattern(sector), sectorSearchLimit)
}

// SearchCompaniesByName matches company names case-insensitively as a
// substring. At most 20 records are returned.
func (s *Store) SearchCompaniesByName(ctx context.Context, name string) ([]Company, error) {
	return s.queryCompanies(ctx, `
		SELECT `+companyColumns+` FROM companies
		WHERE company_name LIKE ? ESCAPE '\'
		ORDER BY source_index ASC LIMIT ?`,
		likePattern(name), companyNameLimit)
}

// InvestorsForSector aggregates investors over up to 100 companies in the
// sector that list investors. Results are ordered by investment count
// descending; ties keep first-seen order.
func (s *Store) InvestorsForSector(ctx context.Context, sector string) ([]InvestorActivity, error) {
	companies, err := s.queryCompanies(ctx, `
		SELECT `+companyColumns+` FROM companies
		WHERE sector LIKE ? ESCAPE '\' AND TRIM(investors) <> ''
		ORDER BY source_index ASC LIMIT ?`,
		likePattern(sector), investorScanLimit)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var activity []InvestorActivity
	for _, c := range companies {
		for _, name := range c.InvestorNames() {
			i, ok := index[name]
			if !ok {
				i = len(activity)
				index[name] = i
				activity = append(activity, InvestorActivity{InvestorName: name})
			}
			activity[i].InvestmentCount++
			activity[i].Companies = append(activity[i].Companies, c.CompanyName)
		}
	}

	sort.SliceStable(activity, func(i, j int) bool {
		return activity[i].InvestmentCount > activity[j].InvestmentCount
	})
	return activity, nil
}

// ListValidSectors returns the distinct sector vocabulary, sorted. When the
// store holds no sectors the defaults are returned; "General" is appended when
// neither "General" nor "Technology" is present.
func (s *Store) ListValidSectors(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT TRIM(sector) FROM companies
		WHERE TRIM(sector) <> '' ORDER BY TRIM(sector) ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing sectors: %w", err)
	}
	defer rows.Close()

	var sectors []string
	for rows.Next() {
		var sector string
		if err := rows.Scan(&sector); err != nil {
			return nil, err
		}
		sectors = append(sectors, sector)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(sectors) == 0 {
		return append([]string(nil), DefaultSectors...), nil
	}

	hasFallback := false
	for _, sector := range sectors {
		if sector == "General" || sector == "Technology" {
			hasFallback = true
			break
		}
	}
	if !hasFallback {
		sectors = append(sectors, "General")
	}
	return sectors, nil
}

func (s *Store) queryCompanies(ctx context.Context, query string, args ...any) ([]Company, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying companies: %w", err)
	}
	defer rows.Close()

	var results []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.SourceIndex, &c.CompanyName, &c.Description, &c.Sector, &c.Series,
			&c.FundingAmount, &c.TotalFunding, &c.Valuation, &c.Investors, &c.FoundedYear, &c.URL, &c.Date); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// likePattern wraps term for a substring LIKE match, escaping LIKE wildcards.
func likePattern(term string) string {
	var b strings.Builder
	b.WriteByte('%')
	for _, r := range strings.TrimSpace(term) {
		if strings.ContainsRune(likeEscapeCharacters, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('%')
	return b.String()
}
