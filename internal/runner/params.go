package runner

import (
	"strconv"
)

// Usage describes the positional parameters.
const Usage = "<start> <end> <multiplier>"

// Params are the positional parameters of a run.
type Params struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Multiplier int     `json:"multiplier"`
}

// ParseParams reads start, end and multiplier from args.
func ParseParams(args []string) (Params, error) {
	if len(args) != 3 {
		return Params{}, startupError(nil, "need 3 parameters %s, got %d", Usage, len(args))
	}

	start, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return Params{}, startupError(err, "start %q", args[0])
	}
	end, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return Params{}, startupError(err, "end %q", args[1])
	}
	multiplier, err := strconv.Atoi(args[2])
	if err != nil {
		return Params{}, startupError(err, "multiplier %q", args[2])
	}
	return Params{Start: start, End: end, Multiplier: multiplier}, nil
}
