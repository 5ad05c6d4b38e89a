package health

// Weight constants for the score formula. They must sum to 1.0.
const (
	weightLoss     = 0.40
	weightDelivery = 0.30
	weightBacklog  = 0.20
	weightUptime   = 0.10
)

// State constants returned by the score calculator.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateCritical = "critical"
	StateUnknown  = "unknown"
)

// Thresholds that map a score to a health state.
const (
	ThresholdHealthy  = 85.0
	ThresholdDegraded = 60.0
)

// Input holds the normalised values fed into the score formula.
// All percentage fields are in the range 0-100.
type Input struct {
	// LossPct is the share of records lost to queue eviction or failed
	// batches. 0 = nothing lost.
	LossPct float64

	// DeliveryRate is the share of batches acknowledged by the collector.
	DeliveryRate float64

	// BacklogPct is how full the dispatch queue is.
	BacklogPct float64

	// UptimePct is the share of recent windows without a failed batch.
	UptimePct float64
}

// Output is the result of the score calculation.
type Output struct {
	Score float64
	State string

	LossFactor     float64
	DeliveryFactor float64
	BacklogFactor  float64
	UptimeFactor   float64
}

// Compute calculates the delivery score:
//
//	score = (
//	    (1 - loss_pct/100)      * 0.40  +
//	    delivery_rate/100       * 0.30  +
//	    (1 - backlog_pct/100)   * 0.20  +
//	    uptime_pct/100          * 0.10
//	) * 100
//
// With no delivery and no uptime data the state is "unknown".
func Compute(in Input) Output {
	if in.UptimePct == 0 && in.DeliveryRate == 0 && in.LossPct == 0 {
		return Output{State: StateUnknown}
	}

	lossFactor := 1 - clamp01(in.LossPct/100)
	deliveryFactor := clamp01(in.DeliveryRate / 100)
	backlogFactor := 1 - clamp01(in.BacklogPct/100)
	uptimeFactor := clamp01(in.UptimePct / 100)

	score := (lossFactor*weightLoss +
		deliveryFactor*weightDelivery +
		backlogFactor*weightBacklog +
		uptimeFactor*weightUptime) * 100

	return Output{
		Score:          score,
		State:          stateFromScore(score),
		LossFactor:     lossFactor,
		DeliveryFactor: deliveryFactor,
		BacklogFactor:  backlogFactor,
		UptimeFactor:   uptimeFactor,
	}
}

func stateFromScore(score float64) string {
	switch {
	case score >= ThresholdHealthy:
		return StateHealthy
	case score >= ThresholdDegraded:
		return StateDegraded
	default:
		return StateCritical
	}
}

// clamp01 restricts v to the range [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
