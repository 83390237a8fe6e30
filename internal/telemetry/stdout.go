package telemetry

import (
	"github.com/rjboer/adrv9002/internal/adrv9002"
	"github.com/rjboer/adrv9002/internal/logging"
)

// LogReporter writes every tuning result through a logger.
type LogReporter struct {
	logger logging.Logger
}

// NewLogReporter builds a reporter with the provided logger.
func NewLogReporter(logger logging.Logger) LogReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return LogReporter{logger: logger}
}

func (r LogReporter) Report(report *adrv9002.TuningReport, err error) {
	if report == nil {
		r.logger.Error("tuning aborted", logging.F("subsystem", "telemetry"), logging.Err(err))
		return
	}
	for _, res := range report.Results {
		fields := []logging.Field{
			logging.F("subsystem", "telemetry"),
			logging.F("port", res.Port),
			logging.F("channel", res.Channel),
		}
		switch {
		case res.Skipped:
			r.logger.Info("channel skipped", fields...)
		case res.Err != nil:
			r.logger.Error("channel failed", append(fields, logging.Err(res.Err))...)
		default:
			fields = append(fields, logging.F("clk_delay", res.Clk), logging.F("data_delay", res.Data))
			if res.Mirrored {
				fields = append(fields, logging.F("mirrored", true))
			}
			if res.Restore != nil {
				fields = append(fields, logging.F("restore_error", res.RestoreError))
			}
			r.logger.Info("channel tuned", fields...)
		}
	}
	summary := []logging.Field{
		logging.F("subsystem", "telemetry"),
		logging.F("ssi", report.SSIType),
		logging.F("tuned", len(report.Tuned())),
		logging.F("failed", len(report.Failed())),
		logging.F("duration", report.Duration),
	}
	if err != nil {
		r.logger.Warn("tuning finished with errors", summary...)
		return
	}
	r.logger.Info("tuning finished", summary...)
}
