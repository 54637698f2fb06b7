package runner

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/integral/internal/coordinator"
)

// Report is the JSON summary written after a successful run.
type Report struct {
	RunID     string              `json:"run_id"`
	Mode      string              `json:"mode"`
	Params    Params              `json:"params"`
	Density   int                 `json:"density"`
	Threads   int                 `json:"kernel_threads"`
	Result    *coordinator.Result `json:"result"`
	WallClock float64             `json:"wall_clock_seconds"`
}

// WriteReport writes r to path as indented JSON.
func WriteReport(path string, r Report) error {
	data, err := sonic.ConfigStd.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
