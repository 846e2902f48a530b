package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rosterly/rosterly-backend/internal/scheduling/events"
	"github.com/rosterly/rosterly-backend/internal/scheduling/jobs"
	"github.com/rosterly/rosterly-backend/internal/scheduling/metrics"
	"github.com/rosterly/rosterly-backend/internal/scheduling/repository"
	"github.com/rosterly/rosterly-backend/internal/scheduling/service"
	"github.com/rosterly/rosterly-backend/pkg/database"
	"github.com/rosterly/rosterly-backend/pkg/messaging"
)

// app holds the wired scheduling components
type app struct {
	db       *database.DB
	rmq      *messaging.RabbitMQ
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	shifts    *repository.ShiftRepository
	directory *repository.DirectoryRepository

	assignments *service.AssignmentService
	scheduler   *service.Scheduler
	hours       *service.HoursLedger
	fill        *service.FillService
	jobs        *jobs.Runner
}

// newApp connects to Postgres and RabbitMQ and wires the services. When
// requireBroker is false a broker outage only disables event publishing.
func newApp(requireBroker bool) (*app, error) {
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
	}

	a := &app{db: db, registry: prometheus.NewRegistry()}

	var publisher *events.SchedulingEventPublisher
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	switch {
	case err == nil:
		a.rmq = rmq
		publisher, err = events.NewSchedulingEventPublisher(rmq, log)
		if err != nil {
			a.close()
			return nil, err
		}
	case requireBroker:
		db.Close()
		return nil, err
	default:
		log.Warn().Err(err).Msg("RabbitMQ unavailable, events will not be published")
		publisher = events.NewPublisherWithSink(nil, log)
	}

	a.metrics = metrics.New(cfg.Metrics, a.registry)
	settings := service.SettingsFromConfig(cfg.Scheduling)

	// Initialize repositories
	a.shifts = repository.NewShiftRepository(db)
	a.directory = repository.NewDirectoryRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	linkRepo := repository.NewManagerLinkRepository(db)
	hoursRepo := repository.NewWeeklyHoursRepository(db)

	// Initialize services
	conflicts := service.NewConflictDetector(assignmentRepo, log)
	a.fill = service.NewFillService(db, a.shifts, log)
	a.hours = service.NewHoursLedger(assignmentRepo, hoursRepo, linkRepo, settings, log)
	a.assignments = service.NewAssignmentService(
		db, a.shifts, assignmentRepo, linkRepo, a.directory,
		conflicts, a.fill, a.hours, publisher, a.metrics, settings, log,
	)
	a.scheduler = service.NewScheduler(
		db, a.shifts, availabilityRepo, linkRepo,
		conflicts, a.hours, a.fill, a.assignments, publisher, a.metrics, settings, log,
	)
	a.jobs = jobs.NewRunner(cfg.Jobs, a.assignments, a.hours, a.fill, a.shifts, a.metrics, cfg.Scheduling.Location(), log)

	return a, nil
}

func (a *app) close() {
	if a.rmq != nil {
		a.rmq.Close()
	}
	a.db.Close()
}
