/**
 * @description
 * Placeholder appraisal scoring.
 * Turns a request into a result: condition label, bounded random value and
 * fixed methodology text. No real market data is consulted.
 */

package services

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/curio-market/backend/internal/models"
)

// Inclusive bounds of a placeholder appraised value
const (
	MinAppraisedValue = 500
	MaxAppraisedValue = 50000
)

const appraisalMethodology = "Simulated Comparative Market Analysis (CMA) and Expert Opinion"

var (
	appraisalDataSources = []string{
		"Simulated Auction Results",
		"Simulated Private Sales Data",
		"General Market Trends",
	}
	sellBuyOptions = []string{
		"Simulated Online marketplaces",
		"Simulated Local antique shops",
		"Simulated Specialized auction houses",
	}
)

// QualityAssessment maps a stated item condition to a quality label.
func QualityAssessment(condition string) string {
	switch strings.TrimSpace(condition) {
	case "Excellent":
		return "Excellent Condition"
	case "Good":
		return "Good Condition"
	default:
		return "Fair Condition"
	}
}

// Scorer produces placeholder results. Safe for concurrent use.
type Scorer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewScorer creates a Scorer drawing values from src, or from a time-seeded
// source when src is nil.
func NewScorer(src rand.Source) *Scorer {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>17|1)
	}
	return &Scorer{rnd: rand.New(src)}
}

func (s *Scorer) value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(MinAppraisedValue + s.rnd.IntN(MaxAppraisedValue-MinAppraisedValue+1))
}

// Score builds the result row for req. The caller persists it.
func (s *Scorer) Score(req *models.AppraisalRequest) *models.AppraisalResult {
	return &models.AppraisalResult{
		RequestID:         req.ID,
		AppraisedValue:    s.value(),
		Currency:          models.DefaultCurrency,
		QualityAssessment: QualityAssessment(req.ItemCondition),
		QualityExplanation: fmt.Sprintf(
			"Based on the provided condition: %s. Further detailed assessment would require physical inspection.",
			req.ItemCondition),
		AppraisalMethodology: appraisalMethodology,
		DataSources:          append(models.StringArray(nil), appraisalDataSources...),
		ExpertInsights: fmt.Sprintf(
			"A simulated expert specializing in %s provided insights based on general market knowledge.",
			req.ItemCategory),
		SellBuyOptions: append(models.StringArray(nil), sellBuyOptions...),
	}
}
