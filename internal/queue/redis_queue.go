package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/G-Research/batchproc/internal/common/compress"
	"github.com/G-Research/batchproc/internal/fanout"
)

const (
	jobKeyPrefix      = "Job:"
	queueKeyPrefix    = "Queue:"
	startedKeyPrefix  = "Registry:Started:"
	finishedKeyPrefix = "Registry:Finished:"
	failedKeyPrefix   = "Registry:Failed:"

	fieldType       = "type"
	fieldPayload    = "data"
	fieldOptions    = "options"
	fieldStatus     = "status"
	fieldCreatedAt  = "created_at"
	fieldStartedAt  = "started_at"
	fieldEndedAt    = "ended_at"
	fieldResult     = "result"
	fieldCompressed = "result_compressed"
	fieldError      = "error"

	defaultResultTTL = 24 * time.Hour
)

type JobQueue interface {
	// Enqueue stores job and appends it to the queue, returning the queue length afterwards.
	Enqueue(job *Job) (int64, error)
	Fetch(jobId string) (*JobInfo, error)
	// Dequeue blocks up to timeout for the next job. It returns nil, nil if none arrived.
	Dequeue(timeout time.Duration) (*Job, error)
	Start(jobId string) error
	Finish(jobId string, result []byte) error
	Fail(jobId string, message string) error
	List() (*JobList, error)
	Size() (int64, error)
	Empty() error
	Name() string
}

// RedisJobQueue keeps every job in a hash and the ids of waiting jobs in a list. Finished, failed and started
// job ids are kept in per queue sets.
type RedisJobQueue struct {
	db           redis.UniversalClient
	name         string
	resultTTL    time.Duration
	compressor   compress.Compressor
	decompressor compress.Decompressor
}

func NewRedisJobQueue(db redis.UniversalClient, config Config) (*RedisJobQueue, error) {
	q := &RedisJobQueue{
		db:           db,
		name:         config.Name,
		resultTTL:    config.ResultTTL,
		compressor:   &compress.NoOpCompressor{},
		decompressor: &compress.NoOpDecompressor{},
	}
	if q.resultTTL <= 0 {
		q.resultTTL = defaultResultTTL
	}
	if config.MinCompressionSize > 0 {
		compressor, err := compress.NewZstdCompressor(config.MinCompressionSize)
		if err != nil {
			return nil, err
		}
		decompressor, err := compress.NewZstdDecompressor()
		if err != nil {
			return nil, err
		}
		q.compressor = compressor
		q.decompressor = decompressor
	}
	return q, nil
}

func (q *RedisJobQueue) Name() string {
	return q.name
}

func (q *RedisJobQueue) queueKey() string {
	return queueKeyPrefix + q.name
}

func (q *RedisJobQueue) Enqueue(job *Job) (int64, error) {
	fields := map[string]interface{}{
		fieldType:      string(job.Type),
		fieldPayload:   string(job.Payload),
		fieldStatus:    string(JobQueued),
		fieldCreatedAt: job.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if len(job.Options) > 0 {
		options, err := json.Marshal(job.Options)
		if err != nil {
			return 0, errors.Wrap(err, "encoding job options")
		}
		fields[fieldOptions] = string(options)
	}

	pipe := q.db.TxPipeline()
	pipe.HMSet(jobKeyPrefix+job.Id, fields)
	length := pipe.RPush(q.queueKey(), job.Id)
	if _, err := pipe.Exec(); err != nil {
		return 0, fmt.Errorf("[RedisJobQueue.Enqueue] error writing to database: %s", err)
	}
	return length.Val(), nil
}

func (q *RedisJobQueue) Fetch(jobId string) (*JobInfo, error) {
	fields, err := q.db.HGetAll(jobKeyPrefix + jobId).Result()
	if err != nil {
		return nil, fmt.Errorf("[RedisJobQueue.Fetch] error reading from database: %s", err)
	}
	if len(fields) == 0 {
		return nil, &ErrJobNotFound{JobId: jobId}
	}

	info := &JobInfo{
		Id:     jobId,
		Type:   fanout.JobType(fields[fieldType]),
		Status: JobStatus(fields[fieldStatus]),
		Error:  fields[fieldError],
	}
	if info.CreatedAt, err = time.Parse(time.RFC3339Nano, fields[fieldCreatedAt]); err != nil {
		return nil, errors.Wrapf(err, "job %s has an invalid creation time", jobId)
	}
	if ended, ok := fields[fieldEndedAt]; ok {
		endedAt, err := time.Parse(time.RFC3339Nano, ended)
		if err != nil {
			return nil, errors.Wrapf(err, "job %s has an invalid end time", jobId)
		}
		info.EndedAt = &endedAt
	}
	if result, ok := fields[fieldResult]; ok {
		decoded := []byte(result)
		if compressed, _ := strconv.ParseBool(fields[fieldCompressed]); compressed {
			if decoded, err = q.decompressor.Decompress(decoded); err != nil {
				return nil, errors.Wrapf(err, "decompressing result of job %s", jobId)
			}
		}
		info.Result = decoded
	}
	if info.Status == JobQueued {
		if info.Position, err = q.position(jobId); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// position returns the zero based index of jobId in the queue, or -1 if it is no longer there.
func (q *RedisJobQueue) position(jobId string) (int64, error) {
	ids, err := q.db.LRange(q.queueKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("[RedisJobQueue.position] error reading from database: %s", err)
	}
	for i, id := range ids {
		if id == jobId {
			return int64(i), nil
		}
	}
	return -1, nil
}

func (q *RedisJobQueue) Dequeue(timeout time.Duration) (*Job, error) {
	for {
		popped, err := q.db.BLPop(timeout, q.queueKey()).Result()
		if err == redis.Nil {
			return nil, nil
		} else if err != nil {
			return nil, fmt.Errorf("[RedisJobQueue.Dequeue] error reading from database: %s", err)
		}

		job, err := q.load(popped[1])
		var notFound *ErrJobNotFound
		if errors.As(err, &notFound) {
			// the job hash expired while its id was still queued
			continue
		}
		return job, err
	}
}

func (q *RedisJobQueue) load(jobId string) (*Job, error) {
	fields, err := q.db.HGetAll(jobKeyPrefix + jobId).Result()
	if err != nil {
		return nil, fmt.Errorf("[RedisJobQueue.load] error reading from database: %s", err)
	}
	if len(fields) == 0 {
		return nil, &ErrJobNotFound{JobId: jobId}
	}
	job := &Job{
		Id:      jobId,
		Type:    fanout.JobType(fields[fieldType]),
		Payload: json.RawMessage(fields[fieldPayload]),
	}
	if options, ok := fields[fieldOptions]; ok {
		if err := json.Unmarshal([]byte(options), &job.Options); err != nil {
			return nil, errors.Wrapf(err, "decoding options of job %s", jobId)
		}
	}
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, fields[fieldCreatedAt]); err != nil {
		return nil, errors.Wrapf(err, "job %s has an invalid creation time", jobId)
	}
	return job, nil
}

func (q *RedisJobQueue) Start(jobId string) error {
	pipe := q.db.TxPipeline()
	pipe.HMSet(jobKeyPrefix+jobId, map[string]interface{}{
		fieldStatus:    string(JobStarted),
		fieldStartedAt: now(),
	})
	pipe.SAdd(startedKeyPrefix+q.name, jobId)
	if _, err := pipe.Exec(); err != nil {
		return fmt.Errorf("[RedisJobQueue.Start] error writing to database: %s", err)
	}
	return nil
}

func (q *RedisJobQueue) Finish(jobId string, result []byte) error {
	stored, compressed, err := q.compressor.Compress(result)
	if err != nil {
		return errors.Wrapf(err, "compressing result of job %s", jobId)
	}
	return q.end(jobId, finishedKeyPrefix, map[string]interface{}{
		fieldStatus:     string(JobFinished),
		fieldEndedAt:    now(),
		fieldResult:     string(stored),
		fieldCompressed: strconv.FormatBool(compressed),
	})
}

func (q *RedisJobQueue) Fail(jobId string, message string) error {
	return q.end(jobId, failedKeyPrefix, map[string]interface{}{
		fieldStatus:  string(JobFailed),
		fieldEndedAt: now(),
		fieldError:   message,
	})
}

func (q *RedisJobQueue) end(jobId string, registryPrefix string, fields map[string]interface{}) error {
	jobKey := jobKeyPrefix + jobId
	pipe := q.db.TxPipeline()
	pipe.HMSet(jobKey, fields)
	pipe.Expire(jobKey, q.resultTTL)
	pipe.SRem(startedKeyPrefix+q.name, jobId)
	pipe.SAdd(registryPrefix+q.name, jobId)
	if _, err := pipe.Exec(); err != nil {
		return fmt.Errorf("[RedisJobQueue.end] error writing to database: %s", err)
	}
	return nil
}

// List returns the queued jobs in order followed by the started, finished and failed job ids.
// Ids whose job hash has expired are left out.
func (q *RedisJobQueue) List() (*JobList, error) {
	ids, err := q.db.LRange(q.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("[RedisJobQueue.List] error reading from database: %s", err)
	}

	pipe := q.db.Pipeline()
	statuses := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		statuses[i] = pipe.HGet(jobKeyPrefix+id, fieldStatus)
	}
	started := pipe.SMembers(startedKeyPrefix + q.name)
	finished := pipe.SMembers(finishedKeyPrefix + q.name)
	failed := pipe.SMembers(failedKeyPrefix + q.name)
	if _, err := pipe.Exec(); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("[RedisJobQueue.List] error reading from database: %s", err)
	}

	list := &JobList{Queued: []JobSummary{}}
	for i, id := range ids {
		status, err := statuses[i].Result()
		if err == redis.Nil {
			continue
		}
		list.Queued = append(list.Queued, JobSummary{Id: id, Status: JobStatus(status)})
	}
	if list.Started, err = q.existing(started.Val()); err != nil {
		return nil, err
	}
	if list.Finished, err = q.existing(finished.Val()); err != nil {
		return nil, err
	}
	if list.Failed, err = q.existing(failed.Val()); err != nil {
		return nil, err
	}
	return list, nil
}

// existing drops ids whose job hash has expired.
func (q *RedisJobQueue) existing(ids []string) ([]string, error) {
	pipe := q.db.Pipeline()
	exists := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		exists[i] = pipe.Exists(jobKeyPrefix + id)
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(); err != nil {
			return nil, fmt.Errorf("[RedisJobQueue.existing] error reading from database: %s", err)
		}
	}
	out := []string{}
	for i, id := range ids {
		if exists[i].Val() > 0 {
			out = append(out, id)
		}
	}
	return out, nil
}

func (q *RedisJobQueue) Size() (int64, error) {
	size, err := q.db.LLen(q.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("[RedisJobQueue.Size] error reading from database: %s", err)
	}
	return size, nil
}

// Empty removes every waiting job from the queue.
func (q *RedisJobQueue) Empty() error {
	ids, err := q.db.LRange(q.queueKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("[RedisJobQueue.Empty] error reading from database: %s", err)
	}
	pipe := q.db.TxPipeline()
	for _, id := range ids {
		pipe.Del(jobKeyPrefix + id)
	}
	pipe.Del(q.queueKey())
	if _, err := pipe.Exec(); err != nil {
		return fmt.Errorf("[RedisJobQueue.Empty] error writing to database: %s", err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
