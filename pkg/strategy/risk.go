package strategy

import (
	"github.com/unvoidf/sigscan/pkg/logger"
)

// Risk tier names used in position sizing advice.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RiskAdvice is the sizing suggestion attached to a signal.
type RiskAdvice struct {
	RiskLevel           string
	AccountRiskPercent  float64
	PositionSizePercent float64
	Leverage            int
	Confidence          float64
}

// RiskManager maps signal confidence to account risk, leverage and
// position size.
type RiskManager struct {
	log logger.Logger

	riskLevels  map[string]float64
	leverageMin int
	leverageMax int
}

func NewRiskManager(log logger.Logger, maxLeverage int) *RiskManager {
	return &RiskManager{
		log: log,
		riskLevels: map[string]float64{
			RiskLow:    0.01,
			RiskMedium: 0.03,
			RiskHigh:   0.05,
		},
		leverageMin: 1,
		leverageMax: maxLeverage,
	}
}

// Advise computes the risk tier, leverage and position size percentage
// for a signal.
func (r *RiskManager) Advise(confidence, positionRiskPercent float64) RiskAdvice {
	level := r.riskLevel(confidence)
	accountRisk := r.riskLevels[level]

	leverage := r.leverage(confidence, positionRiskPercent)
	sizePercent := r.positionPercent(accountRisk, positionRiskPercent, leverage)

	r.log.Debugf("risk advice: confidence=%.3f level=%s leverage=%dx size=%.2f%%",
		confidence, level, leverage, sizePercent)

	return RiskAdvice{
		RiskLevel:           level,
		AccountRiskPercent:  accountRisk * 100,
		PositionSizePercent: sizePercent,
		Leverage:            leverage,
		Confidence:          confidence,
	}
}

func (r *RiskManager) riskLevel(confidence float64) string {
	switch {
	case confidence >= 0.75:
		return RiskHigh
	case confidence >= 0.60:
		return RiskMedium
	default:
		return RiskLow
	}
}

// leverage scales with confidence and backs off as the stop distance
// widens.
func (r *RiskManager) leverage(confidence, riskPercent float64) int {
	base := confidence * float64(r.leverageMax)

	volatilityFactor := 1.0
	switch {
	case riskPercent > 5.0:
		volatilityFactor = 0.5
	case riskPercent > 3.0:
		volatilityFactor = 0.7
	}

	leverage := int(base * volatilityFactor)
	if leverage < r.leverageMin {
		leverage = r.leverageMin
	}
	if leverage > r.leverageMax {
		leverage = r.leverageMax
	}
	return leverage
}

// positionPercent sizes the position so the account loses exactly the
// tier's risk when the stop is hit, capped at 100%.
func (r *RiskManager) positionPercent(accountRisk, positionRisk float64, leverage int) float64 {
	if positionRisk <= 0 {
		return 0
	}
	size := accountRisk * 100 * float64(leverage) / positionRisk
	if size > 100 {
		return 100
	}
	return size
}
