// Package redis implements gasstation/storage.Storage against a single
// Redis instance: every multi-key operation runs as one embedded Lua
// script (scripts.go) so reservation, pool, and lock state stay
// consistent without client-side transactions.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v7"

	"github.com/iotaledger/gas-station/gasstation/storage"
	"github.com/iotaledger/gas-station/gasstation/types"
	"github.com/iotaledger/gas-station/internal/gslog"
)

var log = gslog.New("storage/redis")

const (
	initLockName        = "init_lock"
	maintenanceLockName = "maintenance_lock"
)

// Storage is a Redis-backed storage.Storage. All keys live under a single
// namespace prefix derived from the network endpoint and sponsor address
// ("{network-endpoint}_{sponsor-address}:registry").
type Storage struct {
	client    *goredis.Client
	namespace string
}

// Options configures namespace derivation and the legacy (pre-migration)
// key prefix.
type Options struct {
	NetworkEndpoint string
	SponsorAddress  string
}

func namespaceFor(opts Options) string {
	return fmt.Sprintf("%s_%s:registry", opts.NetworkEndpoint, opts.SponsorAddress)
}

func legacyPrefixFor(opts Options) string {
	return opts.SponsorAddress
}

// New connects to redisURL, runs the one-shot namespace migration if
// needed, and returns a ready Storage.
func New(ctx context.Context, redisURL string, opts Options) (*Storage, error) {
	parsed, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := goredis.NewClient(parsed)
	if err := client.Ping().Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	s := &Storage{client: client, namespace: namespaceFor(opts)}

	if _, err := maybeMigrate(client, legacyPrefixFor(opts), s.namespace); err != nil {
		return nil, fmt.Errorf("migrating redis namespace: %w", err)
	}

	return s, nil
}

// NewWithClient wraps an already-connected client (used by tests against
// miniredis, which has no real network URL to parse).
func NewWithClient(client *goredis.Client, opts Options) (*Storage, error) {
	s := &Storage{client: client, namespace: namespaceFor(opts)}
	if _, err := maybeMigrate(client, legacyPrefixFor(opts), s.namespace); err != nil {
		return nil, fmt.Errorf("migrating redis namespace: %w", err)
	}
	return s, nil
}

func (s *Storage) key(suffix string) string {
	return s.namespace + ":" + suffix
}

func (s *Storage) SetData(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

func (s *Storage) GetData(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(s.key(key)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return v, nil
}

func (s *Storage) ReserveGasCoins(ctx context.Context, targetBudget uint64, reserveDurationMs uint64) (types.ReservationID, []types.GasCoin, error) {
	nowMs := time.Now().UnixNano() / int64(time.Millisecond)
	expiresAtMs := nowMs + int64(reserveDurationMs)
	nowSec := time.Now().Unix()

	res, err := reserveGasCoinsScript.Run(s.client, nil,
		s.namespace, targetBudget, expiresAtMs, nowSec).Result()
	if err != nil {
		return 0, nil, fmt.Errorf("reserve_gas_coins: %w", err)
	}

	row, ok := res.([]interface{})
	if !ok || len(row) < 2 {
		return 0, nil, fmt.Errorf("reserve_gas_coins: unexpected script result %#v", res)
	}

	reservationID, err := toInt64(row[0])
	if err != nil {
		return 0, nil, fmt.Errorf("reserve_gas_coins: %w", err)
	}
	if reservationID == -1 {
		return 0, nil, storage.ErrMaintenanceMode
	}
	if reservationID == 0 {
		return 0, nil, storage.ErrPoolInsufficient
	}

	encoded, ok := row[1].([]interface{})
	if !ok {
		return 0, nil, fmt.Errorf("reserve_gas_coins: unexpected coins field %#v", row[1])
	}
	coins := make([]types.GasCoin, 0, len(encoded))
	for _, e := range encoded {
		s, ok := e.(string)
		if !ok {
			return 0, nil, fmt.Errorf("reserve_gas_coins: non-string coin entry %#v", e)
		}
		coin, err := types.Decode(s)
		if err != nil {
			return 0, nil, fmt.Errorf("reserve_gas_coins: %w", err)
		}
		coins = append(coins, coin)
	}

	return types.ReservationID(reservationID), coins, nil
}

func (s *Storage) ReadyForExecution(ctx context.Context, id types.ReservationID) error {
	if err := readyForExecutionScript.Run(s.client, nil, s.namespace, uint64(id)).Err(); err != nil {
		return fmt.Errorf("ready_for_execution: %w", err)
	}
	return nil
}

func (s *Storage) AddNewCoins(ctx context.Context, coins []types.GasCoin) error {
	if len(coins) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(coins)+1)
	args = append(args, s.namespace)
	for _, c := range coins {
		args = append(args, c.Encode())
	}
	if err := addNewCoinsScript.Run(s.client, nil, args...).Err(); err != nil {
		return fmt.Errorf("add_new_coins: %w", err)
	}
	return nil
}

func (s *Storage) ExpireCoins(ctx context.Context, nowMs int64) ([]string, error) {
	res, err := expireCoinsScript.Run(s.client, nil, s.namespace, nowMs).Result()
	if err != nil {
		return nil, fmt.Errorf("expire_coins: %w", err)
	}
	raw, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expire_coins: unexpected result %#v", res)
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		id, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expire_coins: non-string id %#v", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Storage) InitCoinStatsAtStartup(ctx context.Context) (uint64, uint64, error) {
	res, err := initCoinStatsAtStartupScript.Run(s.client, nil, s.namespace).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("init_coin_stats_at_startup: %w", err)
	}
	row, ok := res.([]interface{})
	if !ok || len(row) != 2 {
		return 0, 0, fmt.Errorf("init_coin_stats_at_startup: unexpected result %#v", res)
	}
	count, err := toInt64(row[0])
	if err != nil {
		return 0, 0, err
	}
	total, err := toInt64(row[1])
	if err != nil {
		return 0, 0, err
	}
	return uint64(count), uint64(total), nil
}

func (s *Storage) IsInitialized(ctx context.Context) (bool, error) {
	v, err := s.client.Get(s.key("initialized")).Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is_initialized: %w", err)
	}
	return v == "1", nil
}

func (s *Storage) acquireLock(name string, durationSec uint64) (bool, error) {
	res, err := acquireLockScript.Run(s.client, nil, s.namespace, name, time.Now().Unix(), durationSec).Result()
	if err != nil {
		return false, err
	}
	v, err := toInt64(res)
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

func (s *Storage) releaseLock(name string) error {
	return releaseLockScript.Run(s.client, nil, s.namespace, name).Err()
}

func (s *Storage) AcquireInitLock(ctx context.Context, durationSec uint64) (bool, error) {
	ok, err := s.acquireLock(initLockName, durationSec)
	if err != nil {
		return false, fmt.Errorf("acquire_init_lock: %w", err)
	}
	return ok, nil
}

func (s *Storage) ReleaseInitLock(ctx context.Context) error {
	if err := s.releaseLock(initLockName); err != nil {
		return fmt.Errorf("release_init_lock: %w", err)
	}
	return nil
}

func (s *Storage) AcquireMaintenanceLock(ctx context.Context, durationSec uint64) (bool, error) {
	ok, err := s.acquireLock(maintenanceLockName, durationSec)
	if err != nil {
		return false, fmt.Errorf("acquire_maintenance_lock: %w", err)
	}
	return ok, nil
}

func (s *Storage) ReleaseMaintenanceLock(ctx context.Context) error {
	if err := s.releaseLock(maintenanceLockName); err != nil {
		return fmt.Errorf("release_maintenance_lock: %w", err)
	}
	return nil
}

func (s *Storage) IsMaintenanceMode(ctx context.Context) (bool, error) {
	v, err := s.client.Get(s.key(maintenanceLockName)).Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is_maintenance_mode: %w", err)
	}
	expiresAt, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false, fmt.Errorf("is_maintenance_mode: malformed lock value %q", v)
	}
	return expiresAt > time.Now().Unix(), nil
}

func (s *Storage) CleanUpCoinRegistry(ctx context.Context) error {
	res, err := cleanUpCoinRegistryScript.Run(s.client, nil, s.namespace).Result()
	if err != nil {
		return fmt.Errorf("clean_up_coin_registry: %w", err)
	}
	deleted, _ := toInt64(res)
	log.Info("cleaned up coin registry", "namespace", s.namespace, "deleted_keys", deleted)
	return nil
}

func (s *Storage) GetAvailableCoinCount(ctx context.Context) (uint64, error) {
	v, err := s.client.Get(s.key("available_coin_count")).Uint64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get_available_coin_count: %w", err)
	}
	return v, nil
}

func (s *Storage) GetAvailableCoinTotalBalance(ctx context.Context) (uint64, error) {
	v, err := s.client.Get(s.key("available_coin_total_balance")).Uint64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get_available_coin_total_balance: %w", err)
	}
	return v, nil
}

func (s *Storage) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping().Err(); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}

var _ storage.Storage = (*Storage)(nil)
