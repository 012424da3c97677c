package timetrigger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/agentcord/agentflow/engine"
	"github.com/robfig/cron/v3"
)

// FlowScheduler dispara flujos en horarios programados. Por cada schedule
// vencido sintetiza un webhook scheduled_trigger por identidad objetivo y lo
// manda por el pipeline de intake, igual que un mensaje entrante.
type FlowScheduler struct {
	schedules  engine.FlowScheduleRepository
	processor  engine.WebhookProcessor
	cronParser cron.Parser
	stopChan   chan struct{}
	running    bool
}

func NewFlowScheduler(
	schedules engine.FlowScheduleRepository,
	processor engine.WebhookProcessor,
) *FlowScheduler {
	return &FlowScheduler{
		schedules:  schedules,
		processor:  processor,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		stopChan:   make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *FlowScheduler) Start(ctx context.Context) {
	if s.running {
		log.Println("⚠️  Flow scheduler already running")
		return
	}

	s.running = true
	log.Println("⏰ Starting flow scheduler...")

	// Run immediately on start
	go s.processDueSchedules(ctx)

	// Then run every minute
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️  Flow scheduler stopped (context done)")
			return
		case <-s.stopChan:
			log.Println("⏹️  Flow scheduler stopped")
			return
		case <-ticker.C:
			s.processDueSchedules(ctx)
		}
	}
}

// Stop stops the scheduler
func (s *FlowScheduler) Stop() {
	if !s.running {
		return
	}
	close(s.stopChan)
	s.running = false
}

// processDueSchedules checks and executes due schedules
func (s *FlowScheduler) processDueSchedules(ctx context.Context) {
	now := time.Now().UTC()

	schedules, err := s.schedules.FindDue(ctx, now)
	if err != nil {
		log.Printf("❌ Failed to fetch due schedules: %v", err)
		return
	}

	if len(schedules) == 0 {
		return
	}

	log.Printf("⏰ Found %d due schedule(s)", len(schedules))

	for _, schedule := range schedules {
		// Execute in goroutine to not block
		go s.executeSchedule(ctx, schedule)
	}
}

// executeSchedule dispara el flujo para cada identidad objetivo del schedule
func (s *FlowScheduler) executeSchedule(ctx context.Context, schedule *engine.FlowSchedule) {
	log.Printf("▶️  Executing schedule: %s (flow: %s, targets: %d)",
		schedule.ID, schedule.FlowID, len(schedule.TargetIdentifiers))

	now := time.Now().UTC()
	triggered := 0

	for _, target := range schedule.TargetIdentifiers {
		req := engine.WebhookRequest{
			Sender:            target,
			BrandID:           schedule.BrandID,
			AccountID:         schedule.AccountID,
			ChannelIdentifier: schedule.ChannelAccountID,
			Channel:           schedule.Channel,
			MessageType:       engine.MessageTypeScheduledTrigger,
			MessageBody: map[string]any{
				"flow_id":        schedule.FlowID.String(),
				"schedule_id":    schedule.ID.String(),
				"schedule_type":  string(schedule.ScheduleType),
				"execution_time": now.Unix(),
				"run_count":      schedule.RunCount + 1,
			},
		}

		resp := s.processor.Process(ctx, req)
		if resp.Status == engine.ResponseStatusError {
			log.Printf("❌ Scheduled trigger failed for target %s: %s", target, resp.Message)
			continue
		}
		triggered++
	}

	log.Printf("📣 Schedule %s triggered %d/%d target(s)", schedule.ID, triggered, len(schedule.TargetIdentifiers))

	// Update schedule
	schedule.MarkExecuted(now)

	nextRun, err := s.calculateNextRun(schedule, now)
	if err != nil {
		log.Printf("⚠️  Failed to calculate next run: %v", err)
	} else {
		schedule.NextRunAt = nextRun
	}

	if err := s.schedules.Update(ctx, *schedule); err != nil {
		log.Printf("❌ Failed to update schedule: %v", err)
		return
	}

	log.Printf("✅ Schedule executed successfully: %s", schedule.ID)
}

// calculateNextRun calculates the next execution time
func (s *FlowScheduler) calculateNextRun(schedule *engine.FlowSchedule, after time.Time) (*time.Time, error) {
	switch schedule.ScheduleType {
	case engine.ScheduleTypeCron:
		return s.calculateCronNextRun(schedule, after)
	case engine.ScheduleTypeInterval:
		return s.calculateIntervalNextRun(schedule, after)
	case engine.ScheduleTypeOnce:
		return nil, nil // One-time schedules don't repeat
	default:
		return nil, fmt.Errorf("unknown schedule type: %s", schedule.ScheduleType)
	}
}

func (s *FlowScheduler) calculateCronNextRun(schedule *engine.FlowSchedule, after time.Time) (*time.Time, error) {
	if schedule.CronExpression == nil {
		return nil, fmt.Errorf("cron expression is nil")
	}

	cronSchedule, err := s.cronParser.Parse(*schedule.CronExpression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	loc, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		loc = time.UTC
	}

	next := cronSchedule.Next(after.In(loc))
	return &next, nil
}

func (s *FlowScheduler) calculateIntervalNextRun(schedule *engine.FlowSchedule, after time.Time) (*time.Time, error) {
	if schedule.IntervalSeconds == nil {
		return nil, fmt.Errorf("interval_seconds is nil")
	}

	interval := time.Duration(*schedule.IntervalSeconds) * time.Second
	next := after.Add(interval)
	return &next, nil
}
