// Package app wires the import engine, its adapters and infrastructure into an fx application.
package app

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/crmimport/pkg/crm/adapter/database/gorm"
	_ "github.com/tigerroll/crmimport/pkg/crm/adapter/database/gorm/mysql"
	_ "github.com/tigerroll/crmimport/pkg/crm/adapter/database/gorm/postgres"
	_ "github.com/tigerroll/crmimport/pkg/crm/adapter/database/gorm/sqlite"
	"github.com/tigerroll/crmimport/pkg/crm/adapter/storage"
	_ "github.com/tigerroll/crmimport/pkg/crm/adapter/storage/gcs"
	_ "github.com/tigerroll/crmimport/pkg/crm/adapter/storage/local"
	"github.com/tigerroll/crmimport/pkg/crm/component/writer"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/engine/orchestrator"
	"github.com/tigerroll/crmimport/pkg/crm/infrastructure/journal"
	"github.com/tigerroll/crmimport/pkg/crm/infrastructure/metrics"
	"github.com/tigerroll/crmimport/pkg/crm/infrastructure/telemetry"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

const stopTimeout = 30 * time.Second

// runState carries the exit code of the import goroutine back to RunApplication.
type runState struct {
	done chan struct{}
	code int
}

func newRunState() *runState {
	return &runState{done: make(chan struct{}), code: ExitFailure}
}

// Options returns the fx options of the import application.
func Options(appCtx context.Context, cfg *config.Config, out io.Writer) fx.Option {
	return fx.Options(
		fx.Supply(
			cfg,
			fx.Annotate(
				appCtx,
				fx.As(new(context.Context)),
				fx.ResultTags(`name:"appCtx"`),
			),
			fx.Annotate(out, fx.As(new(io.Writer))),
		),

		logger.Module,
		config.Module,
		gormadapter.Module,
		storage.Module,
		telemetry.Module,
		metrics.Module,
		journal.Module,
		writer.Module,
		fx.Provide(NewObjectStore),
		orchestrator.Module,
		fx.Provide(newImportRunner),
	)
}

func newImportRunner(importer *orchestrator.Importer, exporter *writer.ParquetExporter, cfg *config.Config, out io.Writer) *ImportRunner {
	return NewImportRunner(importer, exporter, cfg.CRM.Input, out)
}

// RunApplication loads the configuration, runs one import and returns the process exit code.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig) int {
	cfg, err := config.LoadConfig(envFilePath, embeddedConfig)
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		return ExitFailure
	}

	logger.Configure(logger.Config{Level: cfg.CRM.System.Logging.Level, Format: cfg.CRM.System.Logging.Format})
	logger.Infof("Log level set to: %s", cfg.CRM.System.Logging.Level)
	if loc, err := time.LoadLocation(cfg.CRM.System.Timezone); err == nil {
		time.Local = loc
	} else {
		logger.Warnf("Unknown timezone '%s', keeping %s: %v", cfg.CRM.System.Timezone, time.Local, err)
	}

	state := newRunState()
	app := fx.New(
		Options(appCtx, cfg, os.Stdout),
		fx.Supply(state),
		fx.Invoke(fx.Annotate(startImport, fx.ParamTags(
			"",              // lc fx.Lifecycle
			"",              // shutdowner fx.Shutdowner
			"",              // runner *ImportRunner
			"",              // state *runState
			`name:"appCtx"`, // appCtx context.Context
		))),
	)
	if app.Err() != nil {
		logger.Errorf("Application setup failed: %v", app.Err())
		return ExitFailure
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		logger.Errorf("Application start failed: %v", err)
		return ExitFailure
	}

	sig := <-app.Wait()
	logger.Debugf("Shutdown requested: %v", sig)
	// An OS signal also cancels appCtx; the report is still written before stopping.
	<-state.done

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Errorf("Application stop failed: %v", err)
	}
	logger.Sync()
	return state.code
}

// startImport is invoked by fx to run the import once the application has started.
func startImport(lc fx.Lifecycle, shutdowner fx.Shutdowner, runner *ImportRunner, state *runState, appCtx context.Context) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in import run: %v", r)
						state.code = ExitFailure
					}
					close(state.done)
					logger.Infof("Requesting application shutdown after import completion.")
					if err := shutdowner.Shutdown(fx.ExitCode(state.code)); err != nil {
						logger.Errorf("Failed to shutdown application: %v", err)
					}
				}()
				state.code = runner.Run(appCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}
