package engine

import (
	"time"

	"github.com/agentcord/agentflow/pkg/kernel"
)

// FlowSchedule dispara un flujo publicado en un horario, sin esperar mensaje
// del usuario. Cada ejecución sintetiza un webhook scheduled_trigger por cada
// identidad objetivo.
type FlowSchedule struct {
	ID        kernel.ScheduleID `db:"id" json:"id"`
	BrandID   int64             `db:"brand_id" json:"brand_id"`
	AccountID int64             `db:"account_id" json:"user_id"`
	FlowID    kernel.FlowID     `db:"flow_id" json:"flow_id"`

	// Schedule config
	ScheduleType    ScheduleType `db:"schedule_type" json:"schedule_type"`
	CronExpression  *string      `db:"cron_expression" json:"cron_expression,omitempty"`
	IntervalSeconds *int         `db:"interval_seconds" json:"interval_seconds,omitempty"`
	ScheduledAt     *time.Time   `db:"scheduled_at" json:"scheduled_at,omitempty"`

	// Audiencia: identidades de usuario que reciben el disparo
	Channel           string   `db:"channel" json:"channel"`
	ChannelAccountID  string   `db:"channel_account_id" json:"channel_account_id"`
	TargetIdentifiers []string `db:"target_identifiers" json:"target_identifiers"`

	// Status
	IsActive  bool       `db:"is_active" json:"is_active"`
	LastRunAt *time.Time `db:"last_run_at" json:"last_run_at,omitempty"`
	NextRunAt *time.Time `db:"next_run_at" json:"next_run_at,omitempty"`
	RunCount  int        `db:"run_count" json:"run_count"`

	Timezone string `db:"timezone" json:"timezone"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type ScheduleType string

const (
	ScheduleTypeCron     ScheduleType = "cron"     // Cron expression
	ScheduleTypeInterval ScheduleType = "interval" // Fixed interval
	ScheduleTypeOnce     ScheduleType = "once"     // One-time execution
)

// Domain methods
func (s *FlowSchedule) IsValid() bool {
	if s.FlowID.IsEmpty() || s.Channel == "" || len(s.TargetIdentifiers) == 0 {
		return false
	}
	switch s.ScheduleType {
	case ScheduleTypeCron:
		return s.CronExpression != nil && *s.CronExpression != ""
	case ScheduleTypeInterval:
		return s.IntervalSeconds != nil && *s.IntervalSeconds > 0
	case ScheduleTypeOnce:
		return s.ScheduledAt != nil
	default:
		return false
	}
}

func (s *FlowSchedule) ShouldRun(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.NextRunAt == nil {
		return false
	}
	return now.After(*s.NextRunAt) || now.Equal(*s.NextRunAt)
}

func (s *FlowSchedule) MarkExecuted(now time.Time) {
	s.LastRunAt = &now
	s.RunCount++

	// For one-time schedules, deactivate after execution
	if s.ScheduleType == ScheduleTypeOnce {
		s.IsActive = false
		s.NextRunAt = nil
	}
}
