// Package testdata keeps a local copy of each problem's test cases in sync with the grading backend.
package testdata

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"judgehost/internal/common/cache"
	"judgehost/internal/common/httpclient"
	"judgehost/internal/common/ziputil"
	"judgehost/internal/judge/meta"
	appErr "judgehost/pkg/errors"
	"judgehost/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const metaDirName = "meta"

// Config controls the local test data cache.
type Config struct {
	Root        string
	Token       string
	LockTTL     time.Duration
	LockWait    time.Duration
	ChecksumTTL time.Duration
	Limits      ziputil.Limits
}

func (c Config) withDefaults() Config {
	if c.LockTTL <= 0 {
		c.LockTTL = 60 * time.Second
	}
	if c.LockWait <= 0 {
		c.LockWait = 2 * time.Minute
	}
	if c.ChecksumTTL <= 0 {
		c.ChecksumTTL = 600 * time.Second
	}
	return c
}

// store is the part of the Redis cache the test data store needs.
type store interface {
	cache.BasicOps
	cache.LockOps
}

// Store fetches problem test data and metadata from the backend and caches them on disk.
type Store struct {
	cfg    Config
	client *httpclient.Client
	cache  store
}

func NewStore(cfg Config, client *httpclient.Client, c store) (*Store, error) {
	if cfg.Root == "" {
		return nil, appErr.ValidationError("testdata", "root is required")
	}
	if client == nil || c == nil {
		return nil, appErr.ValidationError("testdata", "backend client and cache are required")
	}
	if err := os.MkdirAll(filepath.Join(cfg.Root, metaDirName), 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.TestdataUnavailable, "create test data root failed")
	}
	return &Store{cfg: cfg.withDefaults(), client: client, cache: c}, nil
}

// ProblemDir is where the test cases of a problem are unpacked.
func (s *Store) ProblemDir(problemID int) string {
	return filepath.Join(s.cfg.Root, strconv.Itoa(problemID))
}

func (s *Store) metaPath(problemID int) string {
	return filepath.Join(s.cfg.Root, metaDirName, strconv.Itoa(problemID)+".json")
}

func checksumKey(problemID int) string {
	return fmt.Sprintf("problem-%d-checksum", problemID)
}

// Ensure makes the local test data of problemID match the backend.
// The check and refresh run under a Redis lock shared by every judge host on the same volume.
func (s *Store) Ensure(ctx context.Context, problemID int) error {
	key := checksumKey(problemID)
	lockKey := key + "-lock"
	token := uuid.NewString()

	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockWait)
	defer cancel()
	if err := s.cache.Lock(lockCtx, lockKey, token, s.cfg.LockTTL, 100*time.Millisecond); err != nil {
		return appErr.Wrapf(err, appErr.LockFailed, "acquire test data lock for problem %d failed", problemID)
	}
	defer func() {
		if err := s.cache.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			logger.Warn(ctx, "release test data lock failed", zap.Int("problem_id", problemID), zap.Error(err))
		}
	}()

	current, err := s.cache.Get(ctx, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "read cached checksum failed")
	}
	if current != "" {
		remote, err := s.fetchChecksum(ctx, problemID)
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare([]byte(current), []byte(remote)) == 1 {
			if _, err := os.Stat(s.ProblemDir(problemID)); err == nil {
				logger.Debug(ctx, "problem test data is up to date", zap.Int("problem_id", problemID))
				return nil
			}
		}
	}

	logger.Info(ctx, "refresh problem test data", zap.Int("problem_id", problemID))
	data, err := s.fetch(ctx, problemID, "testdata")
	if err != nil {
		return err
	}
	// the download may outlast the lock; unpacking without it races other hosts
	if err := s.cache.ExtendLock(ctx, lockKey, token, s.cfg.LockTTL); err != nil {
		return appErr.Wrapf(err, appErr.LockFailed, "test data lock of problem %d lost during download", problemID)
	}
	dir := s.ProblemDir(problemID)
	if err := os.RemoveAll(dir); err != nil {
		return appErr.Wrapf(err, appErr.TestdataUnavailable, "clear old test data failed")
	}
	if err := ziputil.ExtractBytes(data, dir, s.cfg.Limits); err != nil {
		_ = os.RemoveAll(dir)
		return appErr.Wrapf(err, appErr.TestdataUnavailable, "unpack test data of problem %d failed", problemID)
	}
	metaJSON, err := s.fetchMeta(ctx, problemID)
	if err != nil {
		return err
	}
	sum, err := checksum(data, metaJSON)
	if err != nil {
		return appErr.Wrapf(err, appErr.TestdataUnavailable, "malformed meta of problem %d", problemID)
	}
	if err := s.cache.Set(ctx, key, sum, s.cfg.ChecksumTTL); err != nil {
		logger.Warn(ctx, "cache test data checksum failed", zap.Int("problem_id", problemID), zap.Error(err))
	}
	return nil
}

// Meta returns the metadata of problemID for a submission in the given language.
func (s *Store) Meta(ctx context.Context, problemID, language int) (meta.Meta, error) {
	data, err := os.ReadFile(s.metaPath(problemID))
	if os.IsNotExist(err) {
		data, err = s.fetchMeta(ctx, problemID)
	}
	if err != nil {
		return meta.Meta{}, appErr.Wrapf(err, appErr.TestdataUnavailable, "load meta of problem %d failed", problemID)
	}
	m, err := meta.Parse(data)
	if err != nil {
		return meta.Meta{}, err
	}
	m.Language = language
	return m, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// fetchMeta downloads the problem metadata and stores it next to the test data.
func (s *Store) fetchMeta(ctx context.Context, problemID int) ([]byte, error) {
	body, err := s.fetch(ctx, problemID, "meta")
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Data) == 0 {
		return nil, appErr.Newf(appErr.TestdataUnavailable, "malformed meta of problem %d", problemID)
	}
	if err := os.WriteFile(s.metaPath(problemID), env.Data, 0644); err != nil {
		return nil, appErr.Wrapf(err, appErr.TestdataUnavailable, "store meta of problem %d failed", problemID)
	}
	return env.Data, nil
}

func (s *Store) fetchChecksum(ctx context.Context, problemID int) (string, error) {
	body, err := s.fetch(ctx, problemID, "checksum")
	if err != nil {
		return "", err
	}
	var resp struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", appErr.Newf(appErr.TestdataUnavailable, "malformed checksum of problem %d", problemID)
	}
	return resp.Data, nil
}

func (s *Store) fetch(ctx context.Context, problemID int, resource string) ([]byte, error) {
	logger.Debug(ctx, "fetch problem resource", zap.Int("problem_id", problemID), zap.String("resource", resource))
	info, err := s.client.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/problem/%d/%s", problemID, resource),
		Query:  url.Values{"token": {s.cfg.Token}},
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.TestdataUnavailable, "fetch %s of problem %d failed", resource, problemID)
	}
	switch {
	case info.StatusCode == http.StatusNotFound:
		return nil, appErr.Newf(appErr.ProblemNotFound, "problem %d not found", problemID)
	case info.StatusCode == http.StatusUnauthorized:
		return nil, appErr.UnauthorizedError("backend rejected the sandbox token")
	case !info.OK():
		logger.Error(ctx, "fetch problem resource failed", zap.Int("problem_id", problemID),
			zap.String("resource", resource), zap.Int("status", info.StatusCode), zap.ByteString("body", info.Body))
		return nil, appErr.Newf(appErr.TestdataUnavailable, "backend answered %d for %s", info.StatusCode, resource)
	}
	return info.Body, nil
}
