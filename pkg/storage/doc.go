// Package storage opens the shared backing stores: the relational database
// (primary plus optional read replicas) holding tenants and tenant users,
// and the Redis instance holding sessions and usage counters.
//
//	cm, err := storage.Open(ctx, cfg.Storage, logger)
//	store := tenants.NewSQLStore(cm.Primary()).WithReader(cm.Replica())
//
//	rdb, err := storage.NewRedisClient(ctx, cfg.Storage)
//	counters := usage.NewRedisCounterStore(rdb)
package storage
