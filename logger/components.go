package logger

// Component names for named loggers.
const (
	ComponentStore       = "Store"
	ComponentSubs        = "Subs"
	ComponentSched       = "Sched"
	ComponentTimers      = "Timers"
	ComponentTuplescript = "Tuplescript"
	ComponentGoja        = "Goja"
	ComponentStorage     = "Storage"
	ComponentStdio       = "Stdio"
	ComponentStateFile   = "StateFile"
	ComponentMetrics     = "Metrics"
	ComponentCLI         = "CLI"
)
