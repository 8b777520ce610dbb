package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// BucketOpener opens a gocloud bucket from its url, e.g. s3://bucket?region=eu-west-1.
type BucketOpener func(ctx context.Context, bucketUrl string) (*blob.Bucket, error)

// Sink writes flow results to a destination url. Supported schemes are file, s3, gs and mem (blob storage)
// and redis, where results are stored under results:<unix seconds>.
type Sink struct {
	openBucket BucketOpener
	openRedis  func(destination string) (redis.UniversalClient, error)
	clock      func() time.Time
}

func NewSink() *Sink {
	return &Sink{
		openBucket: blob.OpenBucket,
		openRedis:  redisFromUrl,
		clock:      time.Now,
	}
}

func redisFromUrl(destination string) (redis.UniversalClient, error) {
	options, err := redis.ParseURL(destination)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing redis destination %s", destination)
	}
	return redis.NewClient(options), nil
}

// Save writes results to destination. With no destination a summary is logged instead.
// It returns where the results were written.
func (s *Sink) Save(ctx context.Context, results interface{}, destination string) (string, error) {
	if destination == "" {
		log.Infof("Results: %d processed items", summarySize(results))
		return "", nil
	}

	u, err := url.Parse(destination)
	if err != nil {
		return "", errors.Wrapf(err, "invalid destination %s", destination)
	}
	switch u.Scheme {
	case "redis", "rediss":
		return s.saveToRedis(results, destination)
	case "file", "s3", "gs", "mem":
		return s.saveToBucket(ctx, results, u)
	}
	return "", errors.Errorf("unsupported destination scheme %q", u.Scheme)
}

func (s *Sink) saveToRedis(results interface{}, destination string) (string, error) {
	content, err := json.Marshal(results)
	if err != nil {
		return "", errors.WithStack(err)
	}
	db, err := s.openRedis(destination)
	if err != nil {
		return "", err
	}
	defer db.Close()

	key := fmt.Sprintf("results:%d", s.clock().Unix())
	if err := db.Set(key, content, 0).Err(); err != nil {
		return "", errors.Wrapf(err, "writing results to redis key %s", key)
	}
	log.Infof("Results saved to Redis key: %s", key)
	return key, nil
}

func (s *Sink) saveToBucket(ctx context.Context, results interface{}, u *url.URL) (string, error) {
	bucketUrl, key := splitBlobUrl(u)
	if key == "" {
		return "", errors.Errorf("destination %s does not name an object", u.String())
	}
	content, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", errors.WithStack(err)
	}

	bucket, err := s.openBucket(ctx, bucketUrl)
	if err != nil {
		return "", errors.Wrapf(err, "opening bucket %s", bucketUrl)
	}
	defer bucket.Close()

	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: "application/json"})
	if err != nil {
		return "", errors.Wrapf(err, "creating writer for %s", key)
	}
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return "", errors.Wrapf(err, "writing %s", key)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "closing writer for %s", key)
	}
	log.Infof("Results saved to %s", u.String())
	return u.String(), nil
}

// splitBlobUrl separates the bucket url from the object key. For file urls the bucket is the parent directory.
func splitBlobUrl(u *url.URL) (bucketUrl string, key string) {
	bucket := *u
	if u.Scheme == "file" {
		dir, file := filepath.Split(u.Path)
		bucket.Path = dir
		return bucket.String(), file
	}
	key = strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	bucket.Path = ""
	return bucket.String(), key
}

func summarySize(results interface{}) int {
	content, err := json.Marshal(results)
	if err != nil {
		return 0
	}
	var decoded interface{}
	if err := json.Unmarshal(content, &decoded); err != nil {
		return 0
	}
	switch v := decoded.(type) {
	case map[string]interface{}:
		return len(v)
	case []interface{}:
		return len(v)
	}
	return 1
}
