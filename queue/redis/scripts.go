package redis

import goredis "github.com/redis/go-redis/v9"

// claimScript moves a member from pending (KEYS[1]) to active (KEYS[2])
// with lease deadline ARGV[2]. Only one caller can win a given member.
var claimScript = goredis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
  redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
  return 1
end
return 0
`)

// ackScript drops a member from active (KEYS[1]) and deletes its entry
// (KEYS[3]) unless it was enqueued again in the meantime (KEYS[2]).
// Returns 1 if the member was still active.
var ackScript = goredis.NewScript(`
local removed = redis.call('ZREM', KEYS[1], ARGV[1])
if not redis.call('ZSCORE', KEYS[2], ARGV[1]) then
  redis.call('DEL', KEYS[3])
end
return removed
`)

// requeueScript moves a member from active (KEYS[1]) back to pending
// (KEYS[2]) with ready time ARGV[2].
var requeueScript = goredis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
  redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
  return 1
end
return 0
`)

// removeScript deletes a waiting member and its entry.
var removeScript = goredis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
  redis.call('DEL', KEYS[2])
  return 1
end
return 0
`)

// reclaimScript removes a member from active (KEYS[1]) only if its lease
// deadline is still at or before ARGV[2], so a late heartbeat wins.
var reclaimScript = goredis.NewScript(`
local s = redis.call('ZSCORE', KEYS[1], ARGV[1])
if s and tonumber(s) <= tonumber(ARGV[2]) then
  redis.call('ZREM', KEYS[1], ARGV[1])
  return 1
end
return 0
`)
