package svc

import (
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	cachekeys "tickbase/internal/cache"
	"tickbase/internal/config"
	"tickbase/internal/store"
)

// ServiceContext bundles the shared infrastructure behind the import and
// candle commands: the Postgres connection, the optional Redis cache and the
// two stores built on them.
type ServiceContext struct {
	Config config.Config

	DBConn      sqlx.SqlConn
	Cache       gocache.Cache
	TTL         cachekeys.TTLSet
	TickStore   store.TickStore
	CandleStore store.CandleStore
}

// NewServiceContext wires stores from config. A missing Postgres DSN yields
// in-memory stores, which keeps dry runs and tests off the network.
func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config: c,
		TTL:    cachekeys.NewTTLSet(c.TTL.Short, c.TTL.Medium, c.TTL.Long),
	}

	if c.Postgres.DSN == "" {
		svc.TickStore = store.NewMemTickStore()
		svc.CandleStore = store.NewMemCandleStore()
		return svc
	}

	conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
	svc.DBConn = conn

	if strings.TrimSpace(c.Redis.Host) != "" {
		conf := gocache.CacheConf{{RedisConf: c.Redis, Weight: 100}}
		svc.Cache = gocache.New(conf, syncx.NewSingleFlight(), gocache.NewStat(cachekeys.Namespace), sqlx.ErrNotFound)
	}

	svc.TickStore = store.NewPgTickStore(conn, store.TickTables{
		Futures: c.Store.FutTicksTable,
		Options: c.Store.OptTicksTable,
	}, svc.Cache, svc.TTL)
	svc.CandleStore = store.NewPgCandleStore(conn, c.Store.CandlesTable)
	return svc
}
