package metrics

import "expvar"

var (
	PerformanceTicks = expvar.NewInt("performance_ticks")
	ScalingTicks     = expvar.NewInt("scaling_ticks")
	ExtractionTicks  = expvar.NewInt("extraction_ticks")

	OutcomesApplied = expvar.NewInt("outcomes_applied")
	OutcomeFailures = expvar.NewInt("outcome_failures")

	AccountSplits     = expvar.NewInt("account_splits")
	ProfitExtractions = expvar.NewInt("profit_extractions")
	GroupTrades       = expvar.NewInt("group_trades")
	EventsDropped     = expvar.NewInt("events_dropped")

	SnapshotSaves = expvar.NewInt("snapshot_saves")
	SnapshotLoads = expvar.NewInt("snapshot_loads")
)
