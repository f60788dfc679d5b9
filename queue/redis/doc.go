// Package redis implements queue.Adapter on Redis.
//
// Each job type has a pending Sorted Set scored by the entry's ready time
// and an active Sorted Set scored by the worker's lease deadline. Entries
// are stored msgpack-encoded under their own key. A claim atomically moves
// the member from pending to active; a heartbeat extends the lease while the
// entry is processed; a sweeper reports entries whose lease expired.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	q := redis.New(client, redis.WithStallTimeout(10*time.Minute))
//	if err := q.Ping(ctx); err != nil { ... }
package redis
