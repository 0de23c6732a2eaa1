package db

import (
	"context"
	"fmt"

	"github.com/go-pg/pg/v10"
	"github.com/rs/zerolog"

	"webhelp-server/src/config"
)

// Init intializes and returns a postgres database connection object.
func Init(cfg config.DBConfig, logger zerolog.Logger) (*pg.DB, error) {
	dbAddr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)

	if cfg.Password == "" {
		return nil, fmt.Errorf("missing postgres password. Export \"WEBHELP_DB_PASS=<your_password>\"")
	}

	conn := pg.Connect(&pg.Options{
		Addr:     dbAddr,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Name,
	})

	// Print SQL queries to logger if loglevel is set to debug.
	conn.AddQueryHook(loggerHook{logger: logger})

	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

type loggerHook struct {
	logger zerolog.Logger
}

func (h loggerHook) BeforeQuery(ctx context.Context, evt *pg.QueryEvent) (context.Context, error) {
	if h.logger.GetLevel() > zerolog.DebugLevel {
		return ctx, nil
	}

	q, err := evt.FormattedQuery()
	if err != nil {
		return nil, err
	}

	h.logger.Debug().Msg(string(q))

	return ctx, nil
}

func (h loggerHook) AfterQuery(_ context.Context, evt *pg.QueryEvent) error {
	if evt.Err != nil {
		h.logger.Debug().Msgf("%s executing a query", evt.Err)
	}
	return nil
}
