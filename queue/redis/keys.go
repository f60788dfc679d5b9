package redis

// Key layout, relative to the configured prefix (default "jobcore:"):
//
//	queue:{type}:pending  ZSET  job id → ready time (unix ms)
//	queue:{type}:active   ZSET  job id → lease deadline (unix ms)
//	queue:entry:{id}      STRING msgpack-encoded queue.Entry

const defaultPrefix = "jobcore:"

func (q *Queue) pendingKey(jobType string) string {
	return q.prefix + "queue:" + jobType + ":pending"
}

func (q *Queue) activeKey(jobType string) string {
	return q.prefix + "queue:" + jobType + ":active"
}

func (q *Queue) entryKey(jobID string) string {
	return q.prefix + "queue:entry:" + jobID
}
