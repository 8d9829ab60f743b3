package processor

import (
	"context"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pkg/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Reconciler - пересчёт метрик всех товаров
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// CronScheduler периодически сверяет сохранённые метрики товаров с их ценами
type CronScheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	log        zerolog.Logger
}

func NewCronScheduler(reconciler Reconciler) *CronScheduler {
	log := logger.Component("cron")
	cronLog := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(cronLog),
		// следующий запуск пропускается, пока не закончился предыдущий
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	return &CronScheduler{
		cron:       c,
		reconciler: reconciler,
		log:        log,
	}
}

// Start регистрирует задачу сверки и сразу выполняет первую сверку
func (s *CronScheduler) Start(ctx context.Context, schedule string) error {
	s.log.Info().Str("schedule", schedule).Msg("starting cron scheduler")

	if _, err := s.cron.AddFunc(schedule, func() { s.reconcile(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	s.reconcile(ctx)

	return nil
}

func (s *CronScheduler) Stop() {
	s.log.Info().Msg("stopping cron scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("cron scheduler stopped")
}

func (s *CronScheduler) GetEntries() []cron.Entry {
	return s.cron.Entries()
}

func (s *CronScheduler) reconcile(ctx context.Context) {
	ctx = metrics.StartTimer(ctx)
	repaired, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		s.log.Error().Err(err).
			Int("repaired", repaired).
			Dur("duration", metrics.GetDuration(ctx)).
			Msg("reconciliation finished with errors")
		return
	}
	s.log.Info().
		Int("repaired", repaired).
		Dur("duration", metrics.GetDuration(ctx)).
		Msg("reconciliation completed")
}

// cronLogger направляет логи cron в zerolog
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
