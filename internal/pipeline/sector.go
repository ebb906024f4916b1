package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/metrics"
	"github.com/kalambet/fundscout/internal/trace"
)

const (
	// DefaultConfidenceThreshold is the inclusive confidence a sector
	// classification needs to unlock sector-scoped data.
	DefaultConfidenceThreshold = 0.8

	defaultVocabularyTimeout = 5 * time.Second
)

// SectorSource provides the current sector vocabulary.
type SectorSource interface {
	ListValidSectors(ctx context.Context) ([]string, error)
}

// SectorClassification is the sector classifier's structured verdict.
type SectorClassification struct {
	Sector     string  `json:"sector"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Route names the two arms of the sector gate.
const (
	RouteSectorScoped = "sector_scoped"
	RouteGeneric      = "generic"
)

// GateDecision is either SectorScoped or Generic.
type GateDecision interface {
	Route() string
}

// SectorScoped selects sector-specific retrieval for Sector.
type SectorScoped struct {
	Sector     string
	Confidence float64
}

func (SectorScoped) Route() string { return RouteSectorScoped }

// Generic selects advice without sector data.
type Generic struct {
	Reason     string
	Sector     string
	Confidence float64
}

func (Generic) Route() string { return RouteGeneric }

// Gate applies the confidence threshold. Confidence equal to the threshold
// passes.
func Gate(c SectorClassification, threshold float64) GateDecision {
	g := Generic{Sector: c.Sector, Confidence: c.Confidence}
	switch {
	case c.Sector == "" || c.Sector == UnknownSector:
		g.Reason = "the startup's sector could not be identified"
	case c.Confidence < threshold:
		g.Reason = fmt.Sprintf("sector %s has confidence %.2f, below %.2f", c.Sector, c.Confidence, threshold)
	default:
		return SectorScoped{Sector: c.Sector, Confidence: c.Confidence}
	}
	return g
}

// SectorGate classifies the user's sector and decides the advice route.
type SectorGate struct {
	runner    AgentRunner
	sectors   SectorSource
	threshold float64
	timeout   time.Duration
}

func NewSectorGate(runner AgentRunner, sectors SectorSource, threshold float64) *SectorGate {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &SectorGate{runner: runner, sectors: sectors, threshold: threshold, timeout: defaultVocabularyTimeout}
}

// Decide fetches the sector vocabulary, classifies the query and applies the
// gate. A vocabulary lookup error counts as zero confidence and selects
// Generic. Classifier failures are returned: *agent.SchemaValidationError for
// an unusable verdict, *agent.UpstreamTimeout when a step runs out of time.
func (g *SectorGate) Decide(ctx context.Context, query string, history []agent.Turn) (GateDecision, error) {
	log := trace.Logger(ctx)

	vocabulary, err := g.vocabulary(ctx)
	if err != nil {
		var ut *agent.UpstreamTimeout
		if errors.As(err, &ut) || ctx.Err() != nil {
			return nil, err
		}
		log.Warn("sector vocabulary unavailable, using generic advice", "error", err)
		return g.record(Generic{Reason: "sector vocabulary unavailable"}), nil
	}

	res, err := g.runner.Run(ctx, sectorClassifierSpec(vocabulary), agent.NewConversation(history, query))
	if err != nil {
		return nil, fmt.Errorf("sector classification: %w", err)
	}

	var c SectorClassification
	if err := res.Decode(&c); err != nil {
		return nil, &agent.SchemaValidationError{Agent: AgentSectorClassifier, Raw: res.Text, Err: err}
	}

	d := Gate(c, g.threshold)
	log.Info("sector gate", "sector", c.Sector, "confidence", c.Confidence, "route", d.Route())
	return g.record(d), nil
}

func (g *SectorGate) vocabulary(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	sectors, err := g.sectors.ListValidSectors(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &agent.UpstreamTimeout{Step: "sector vocabulary", Timeout: g.timeout, Err: err}
		}
		return nil, err
	}
	if len(sectors) == 0 {
		return nil, errors.New("empty sector vocabulary")
	}
	return sectors, nil
}

func (g *SectorGate) record(d GateDecision) GateDecision {
	metrics.SectorGateTotal.WithLabelValues(d.Route()).Inc()
	return d
}
