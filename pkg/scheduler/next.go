package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/duplistack/core/pkg/models"
)

// CronExpr renders a schedule as a standard five-field cron expression.
// Daily at 23:00 becomes "0 23 * * *"; weekly on mon,wed "0 23 * * mon,wed".
func CronExpr(s *models.Schedule) string {
	hour, minute := s.TimeParts()
	if s.Cadence == models.CadenceWeekly && len(s.Days) > 0 {
		return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(s.Days, ","))
	}
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// NextDue computes the schedule's next due time strictly after the given
// instant. Cron slots are absolute wall-clock anchors, so recomputing after
// a long run lands on the next scheduled slot rather than drifting by the
// run's duration.
func NextDue(s *models.Schedule, after time.Time) (time.Time, error) {
	spec, err := cron.ParseStandard(CronExpr(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q: %w", CronExpr(s), err)
	}
	return spec.Next(after), nil
}
