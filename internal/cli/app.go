package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"

	"github.com/shaiso/Refinery/internal/config"
	"github.com/shaiso/Refinery/internal/job"
	"github.com/shaiso/Refinery/internal/mq"
	"github.com/shaiso/Refinery/internal/refine"
	"github.com/shaiso/Refinery/internal/sink"
	"github.com/shaiso/Refinery/internal/telemetry"
)

// ErrReported — ошибка уже выведена пользователю; main только выходит с кодом 1.
var ErrReported = errors.New("error already reported")

// ErrNoPostgres — команде нужен postgres_dsn.
var ErrNoPostgres = errors.New("postgres_dsn is not configured")

// ErrNoAMQP — команде нужен amqp_url.
var ErrNoAMQP = errors.New("amqp_url is not configured")

// App — состояние одного запуска CLI: настройки и лениво созданные
// соединения. Заполняется в PersistentPreRunE корневой команды.
type App struct {
	Version string
	Viper   *viper.Viper
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Out     *Output

	stdout io.Writer
	stderr io.Writer

	refine *refine.Refine
	pool   *pgxpool.Pool
	amqp   *mq.Connection
}

// NewApp создаёт App с конфигурацией по умолчанию.
func NewApp(version string, stdout, stderr io.Writer) *App {
	return &App{
		Version: version,
		Viper:   config.New(),
		Logger:  slog.Default(),
		Out:     NewOutput(stdout, stderr, false),
		stdout:  stdout,
		stderr:  stderr,
	}
}

// Init читает конфигурацию и настраивает логгер, метрики и вывод.
func (a *App) Init(configPath string, jsonMode bool) error {
	cfg, err := config.Load(a.Viper, configPath)
	if err != nil {
		return err
	}
	a.Config = cfg

	a.Logger = telemetry.SetupLogger(telemetry.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Writer: a.stderr,
	})
	a.Metrics = telemetry.NewMetrics()
	a.Out = NewOutput(a.stdout, a.stderr, jsonMode)

	if cfg.File != "" {
		a.Logger.Debug("config loaded", "file", cfg.File)
	}
	return nil
}

// Refine возвращает клиент сервера OpenRefine.
func (a *App) Refine() *refine.Refine {
	if a.refine == nil {
		server := refine.NewServer(a.Config.ServerURL(),
			refine.WithTimeout(a.Config.Timeout),
			refine.WithLogger(a.Logger),
			refine.WithMetrics(a.Metrics),
			refine.WithUserAgent("refinery/"+a.Version),
		)
		a.refine = refine.New(server)
	}
	return a.refine
}

// Postgres возвращает пул соединений; без postgres_dsn — ErrNoPostgres.
func (a *App) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if a.Config.PostgresDSN == "" {
		return nil, ErrNoPostgres
	}
	pool, err := sink.NewPool(ctx, a.Config.PostgresDSN)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.Logger.Debug("postgres connected")
	return pool, nil
}

// AMQP возвращает соединение с брокером; без amqp_url — ErrNoAMQP.
func (a *App) AMQP(ctx context.Context) (*mq.Connection, error) {
	if a.amqp != nil {
		return a.amqp, nil
	}
	if a.Config.AMQPURL == "" {
		return nil, ErrNoAMQP
	}
	conn, err := mq.NewConnection(a.Config.AMQPURL, a.Logger)
	if err != nil {
		return nil, err
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	a.amqp = conn
	return conn, nil
}

// Runner собирает job.Runner. Postgres и брокер подключаются, только
// если они настроены.
func (a *App) Runner(ctx context.Context) (*job.Runner, error) {
	cfg := job.Config{
		Refine:  a.Refine(),
		Metrics: a.Metrics,
		Logger:  a.Logger,
	}

	if a.Config.PostgresDSN != "" {
		pool, err := a.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		runs := sink.NewRunLog(pool)
		if err := runs.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		cfg.Loader = sink.New(pool, a.Logger)
		cfg.Runs = runs
	}

	if a.Config.AMQPURL != "" {
		conn, err := a.AMQP(ctx)
		if err != nil {
			return nil, err
		}
		cfg.Publisher = mq.NewPublisher(conn, a.Logger)
	}

	return job.NewRunner(cfg), nil
}

// Close пишет textfile метрик и закрывает соединения.
func (a *App) Close() error {
	var errs []error
	if a.Config != nil {
		errs = append(errs, a.Metrics.WriteTextfile(a.Config.MetricsFile))
	}
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close amqp: %w", err))
		}
		a.amqp = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errors.Join(errs...)
}
