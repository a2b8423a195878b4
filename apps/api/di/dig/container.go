package dig_container

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/cheti/apps/api/echo"
	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/services/document"
	emailsvc "github.com/trezcool/cheti/services/email"
	"github.com/trezcool/cheti/services/filestore"
	"github.com/trezcool/cheti/services/lock"
	logsvc "github.com/trezcool/cheti/services/logger"
	"github.com/trezcool/cheti/services/metrics"
	"github.com/trezcool/cheti/services/tracing"
	"github.com/trezcool/cheti/storage/database"
	gormrepos "github.com/trezcool/cheti/storage/database/gorm"
	sqlxrepos "github.com/trezcool/cheti/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Storage is the database behind the certificate repository.
type Storage struct {
	Engine string
	DB     *sql.DB
	Repo   certificate.Repository
}

func (s *Storage) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Waiter is implemented by email services that send in the background.
type Waiter interface {
	Wait()
}

type serviceParams struct {
	dig.In
	Conf      *core.Config
	Repo      certificate.Repository
	Signer    *certificate.Signer
	Locker    certificate.Locker
	Store     certificate.DocumentStore
	Generator certificate.DocumentGenerator
	Mail      core.EmailService
	Metrics   certificate.Metrics
	Logger    core.Logger
}

type serverParams struct {
	dig.In
	Conf           *core.Config
	Logger         core.Logger
	CertificateSvc *certificate.Service
}

func newLogrus(conf *core.Config) *logrus.Logger {
	return logsvc.NewLogrus(conf)
}

func loggerFactory(component string) func(*core.Config, *logrus.Logger) core.Logger {
	return func(conf *core.Config, l *logrus.Logger) core.Logger {
		return logsvc.NewRollbarLogger(l.WithField("component", component), conf)
	}
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) (*Storage, error) {
	switch conf.Database.Engine {
	case database.EngineSQLite:
		gdb, err := database.OpenSQLite(conf.Database.Path)
		if err != nil {
			return nil, err
		}
		if err = gormrepos.Migrate(gdb); err != nil {
			return nil, err
		}
		db, err := gdb.DB()
		if err != nil {
			return nil, errors.Wrap(err, "getting sqlite connection pool")
		}
		loggerParam.Logger.Info(fmt.Sprintf("using sqlite database %s", conf.Database.Path))
		return &Storage{Engine: database.EngineSQLite, DB: db, Repo: gormrepos.NewCertificateRepository(gdb)}, nil

	case database.EnginePostgres, "":
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		db, err := database.OpenSQLx(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(db.DB); err != nil {
			return nil, err
		}
		loggerParam.Logger.Info(fmt.Sprintf("using postgres database %s@%s", conf.Database.Name, conf.Database.Address()))
		return &Storage{Engine: database.EnginePostgres, DB: db.DB, Repo: sqlxrepos.NewCertificateRepository(db)}, nil

	default:
		return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}
}

func newRepository(s *Storage) certificate.Repository {
	return s.Repo
}

// newLocker shares batch locks through redis when configured; a single process can use local locks.
func newLocker(conf *core.Config, logger core.Logger) (certificate.Locker, error) {
	if conf.Redis.Addr == "" {
		return lock.NewLocalLocker(), nil
	}
	rdb, err := lock.NewRedisClient(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return lock.NewRedisLocker(rdb, logger), nil
}

func newDocumentStore(conf *core.Config) (certificate.DocumentStore, error) {
	return filestore.New(context.Background(), conf)
}

func newDocumentGenerator(conf *core.Config) certificate.DocumentGenerator {
	return document.NewPDFGenerator(conf)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) certificate.Metrics {
	return metrics.New(reg)
}

func newTracerProvider(conf *core.Config) (*sdktrace.TracerProvider, error) {
	return tracing.NewTracerProvider(context.Background(), conf)
}

func newSigner(conf *core.Config) (*certificate.Signer, error) {
	secret := conf.SigningSecret
	if secret == "" {
		secret = conf.SecretKey
	}
	return certificate.NewSigner(secret)
}

func newCertificateService(p serviceParams) *certificate.Service {
	return certificate.NewService(certificate.Deps{
		Conf:      p.Conf,
		Repo:      p.Repo,
		Signer:    p.Signer,
		Locker:    p.Locker,
		Store:     p.Store,
		Generator: p.Generator,
		Mail:      p.Mail,
		Metrics:   p.Metrics,
		Log:       p.Logger,
	})
}

func newServer(p serverParams) *echoapi.Server {
	deps := echoapi.ServerDeps{
		Conf:           p.Conf,
		Logger:         p.Logger,
		CertificateSvc: p.CertificateSvc,
	}
	if p.Conf.Storage.Backend == filestore.BackendLocal {
		deps.MediaDir = p.Conf.Storage.LocalDir
	}
	return echoapi.NewServer(deps)
}

// New returns a new dependency injection dig.Container; component names the logs of the running app.
func New(component string) *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogrus))
	must(c.Provide(loggerFactory(component)))
	must(c.Provide(loggerFactory("db"), dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newRepository))
	must(c.Provide(newLocker))
	must(c.Provide(newDocumentStore))
	must(c.Provide(newDocumentGenerator))
	must(c.Provide(newEmailService))
	must(c.Provide(newRegistry))
	must(c.Provide(newMetrics))
	must(c.Provide(newTracerProvider))
	must(c.Provide(newSigner))
	must(c.Provide(newCertificateService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
