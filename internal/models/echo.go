package models

// EchoGroup is the set of files sharing a (task, run) identity and differing only by echo
type EchoGroup struct {
	Task string
	Run  string

	// Stem is the shared filename stem with the echo entity replaced by "echo-*"
	Stem string

	// Members are ordered by echo index
	Members []ScanFile

	// EchoTimesMs holds the echo time per member in milliseconds, nil if metadata was missing
	EchoTimesMs []float64
}

// Size returns the number of echoes in the group
func (g *EchoGroup) Size() int {
	return len(g.Members)
}

// DerivedMaps holds the outputs of the monoexponential fit for one group
type DerivedMaps struct {
	T2StarMap string
	S0Map     string
	RMSEMap   string

	// ConfoundsPath is the residual-error confound time series table
	ConfoundsPath string

	// Percentiles holds the RMSE percentile columns (2nd, 25th, 50th, 75th, 98th) per volume
	Percentiles [][]float64

	// PercentileNames are the header names of the extracted columns
	PercentileNames []string

	// RMSEScaleMax is the temporal mean of the 98th percentile column, used as display upper bound
	RMSEScaleMax float64
}

// EchoGroupResult is the outcome of processing one EchoGroup
type EchoGroupResult struct {
	Group EchoGroup

	// Processed is true when derived maps were generated
	Processed bool

	// Note is the text shown in the report when maps were not generated
	Note string

	Maps *DerivedMaps

	Images map[string]string
}
