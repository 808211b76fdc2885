package engine

import "errors"

// insufficientDataMsg is shown when a range has too few bars to simulate.
const insufficientDataMsg = "Not enough historical data for the selected range. Please choose a wider date range."

// ConfigurationError means the run could not start with the given inputs.
type ConfigurationError struct {
	Message string
	Bars    int
	Needed  int
}

func (e *ConfigurationError) Error() string { return e.Message }

// ErrAlreadyRunning is returned when Run is called while another run is in progress.
var ErrAlreadyRunning = errors.New("backtest already running")
