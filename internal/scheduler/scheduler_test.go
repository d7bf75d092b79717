package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dairy-credit-ledger/internal/config"
	"dairy-credit-ledger/internal/jobs"
	"dairy-credit-ledger/internal/repository/memory"
)

func newRunner(cfg config.SchedulerConfig) *jobs.JobRunner {
	return jobs.NewJobRunner(memory.New(), &jobs.Services{}, &config.Config{Scheduler: cfg})
}

func TestNewScheduler_RegistersJobs(t *testing.T) {
	s := NewScheduler(newRunner(config.SchedulerConfig{
		ProcessGeneratedBatches: "0 0 1 * * *",
		AuditLedgers:            "0 30 2 * * *",
	}))
	assert.Len(t, s.cron.Entries(), 2)
	assert.True(t, s.IsRunning())
}

func TestNewScheduler_SkipsInvalidSpec(t *testing.T) {
	s := NewScheduler(newRunner(config.SchedulerConfig{
		ProcessGeneratedBatches: "every night",
		AuditLedgers:            "0 30 2 * * *",
	}))
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(newRunner(config.SchedulerConfig{
		ProcessGeneratedBatches: "0 0 1 * * *",
		AuditLedgers:            "0 30 2 * * *",
	}))
	s.Start()
	s.Stop()
}
