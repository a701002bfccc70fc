package sourceconfig_test

import (
	"testing"
	"time"

	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"
	"github.com/stretchr/testify/require"
)

func validSourceConfig() *sourceconfig.SourceConfig {
	return &sourceconfig.SourceConfig{
		Name:     "arxiv_ml",
		Kind:     sourceconfig.KindArXiv,
		IsActive: true,
		AdapterParams: map[string]any{
			"categories": []string{"cs.LG"},
			"keywords":   []string{"transformer"},
		},
		Schedule: sourceconfig.Schedule{IntervalMinutes: 60, Enabled: true},
		Filters:  sourceconfig.Filters{RelevanceThreshold: 0.7},
	}
}

func TestSourceConfig_Validate_Valid(t *testing.T) {
	t.Parallel()
	require.NoError(t, validSourceConfig().Validate())
}

func TestSourceConfig_Validate_RequiresName(t *testing.T) {
	t.Parallel()
	cfg := validSourceConfig()
	cfg.Name = ""
	require.Error(t, cfg.Validate())
}

func TestSourceConfig_Validate_RejectsUnknownKind(t *testing.T) {
	t.Parallel()
	cfg := validSourceConfig()
	cfg.Kind = sourceconfig.Kind("NOT_REAL")
	require.Error(t, cfg.Validate())
}

func TestSourceConfig_ApplyDefaults_SetsMaxPapersPerRun(t *testing.T) {
	t.Parallel()
	cfg := validSourceConfig()
	cfg.MaxPapersPerRun = 0
	cfg.ApplyDefaults()
	require.Equal(t, sourceconfig.DefaultMaxPapersPerRun, cfg.MaxPapersPerRun)
}

func TestSchedule_Validate_RequiresIntervalOrTimeOfDay(t *testing.T) {
	t.Parallel()
	s := sourceconfig.Schedule{Enabled: true}
	require.Error(t, s.Validate())
}

func TestSchedule_Validate_AcceptsTimeOfDayOnly(t *testing.T) {
	t.Parallel()
	s := sourceconfig.Schedule{TimeOfDay: "09:30", Enabled: true}
	require.NoError(t, s.Validate())
}

func TestSchedule_Validate_RejectsMalformedTimeOfDay(t *testing.T) {
	t.Parallel()
	s := sourceconfig.Schedule{TimeOfDay: "9:30am", Enabled: true}
	require.Error(t, s.Validate())
}

func TestSchedule_Validate_RejectsUnknownWeekday(t *testing.T) {
	t.Parallel()
	s := sourceconfig.Schedule{IntervalMinutes: 60, DaysOfWeek: []string{"Someday"}}
	require.Error(t, s.Validate())
}

func TestFilters_Validate_RejectsThresholdOutOfRange(t *testing.T) {
	t.Parallel()
	f := sourceconfig.Filters{RelevanceThreshold: 2}
	require.Error(t, f.Validate())
}

func TestFilters_Validate_RejectsDateFromAfterDateTo(t *testing.T) {
	t.Parallel()
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := sourceconfig.Filters{RelevanceThreshold: 0.5, DateFrom: &from, DateTo: &to}
	require.Error(t, f.Validate())
}

func TestScheduleState_InFlight(t *testing.T) {
	t.Parallel()
	started := time.Now()
	state := &sourceconfig.ScheduleState{SourceName: "arxiv_ml", StartedAt: &started}
	require.True(t, state.InFlight())

	finished := started.Add(time.Second)
	state.FinishedAt = &finished
	require.False(t, state.InFlight())
}
