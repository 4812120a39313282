package redis

import "github.com/go-redis/redis/v7"

// Each operation is a single Lua script so that the multi-key updates it
// performs are linearizable without client-side transactions, so that
// the embedded atomic scripts are the source of truth for multi-key
// consistency.
//
// Coins are persisted in ns:available_gas_coins as GasCoin.Encode()
// strings ("balance,id,version,digest"); ns:available_gas_coin_keys is a
// side-set of "id:version" pairs used to make add_new_coins idempotent.
// A reservation's held coins are persisted under ns:<reservation_id> as
// their full encoded strings joined by ';', so that expiry can restore a
// coin's exact pre-reservation balance and object ref (see DESIGN.md for
// why a plain object-id list is not sufficient to satisfy that invariant).

var reserveGasCoinsScript = redis.NewScript(`
local ns = ARGV[1]
local target_budget = tonumber(ARGV[2])
local expires_at_ms = ARGV[3]
local now_sec = tonumber(ARGV[4])

local maint_key = ns .. ':maintenance_lock'
local maint = redis.call('GET', maint_key)
if maint and tonumber(maint) > now_sec then
  return {-1, {}, 0, 0}
end

local pool_key = ns .. ':available_gas_coins'
local count_key = ns .. ':available_coin_count'
local balance_key = ns .. ':available_coin_total_balance'
local keyset_key = ns .. ':available_gas_coin_keys'

local pool = redis.call('LRANGE', pool_key, 0, -1)
local sum = 0
local n = 0
for i, entry in ipairs(pool) do
  local bal = tonumber(string.match(entry, '^(%d+),'))
  sum = sum + bal
  n = i
  if sum >= target_budget then
    break
  end
end

if sum < target_budget then
  return {0, {}, 0, 0}
end

local selected = {}
for i = 1, n do
  table.insert(selected, pool[i])
  local id = string.match(pool[i], '^%d+,([^,]+),')
  local ver = string.match(pool[i], '^%d+,[^,]+,(%d+),')
  redis.call('SREM', keyset_key, id .. ':' .. ver)
end

redis.call('LTRIM', pool_key, n, -1)

local reservation_id = redis.call('INCR', ns .. ':next_reservation_id')
redis.call('SET', ns .. ':' .. reservation_id, table.concat(selected, ';'))
redis.call('ZADD', ns .. ':expiration_queue', expires_at_ms, reservation_id)

local new_balance = redis.call('DECRBY', balance_key, sum)
local new_count = redis.call('DECRBY', count_key, n)

return {reservation_id, selected, new_balance, new_count}
`)

var readyForExecutionScript = redis.NewScript(`
local ns = ARGV[1]
local reservation_id = ARGV[2]
redis.call('DEL', ns .. ':' .. reservation_id)
redis.call('ZREM', ns .. ':expiration_queue', reservation_id)
return 1
`)

var addNewCoinsScript = redis.NewScript(`
local ns = ARGV[1]
local pool_key = ns .. ':available_gas_coins'
local count_key = ns .. ':available_coin_count'
local balance_key = ns .. ':available_coin_total_balance'
local keyset_key = ns .. ':available_gas_coin_keys'
local init_key = ns .. ':initialized'

local added_count = 0
local added_balance = 0
for i = 2, #ARGV do
  local entry = ARGV[i]
  local bal = tonumber(string.match(entry, '^(%d+),'))
  local id = string.match(entry, '^%d+,([^,]+),')
  local ver = string.match(entry, '^%d+,[^,]+,(%d+),')
  local dedupe_key = id .. ':' .. ver
  if redis.call('SISMEMBER', keyset_key, dedupe_key) == 0 then
    redis.call('RPUSH', pool_key, entry)
    redis.call('SADD', keyset_key, dedupe_key)
    added_count = added_count + 1
    added_balance = added_balance + bal
  end
end
redis.call('SET', init_key, '1')
local new_balance = redis.call('INCRBY', balance_key, added_balance)
local new_count = redis.call('INCRBY', count_key, added_count)
return {new_balance, new_count}
`)

var expireCoinsScript = redis.NewScript(`
local ns = ARGV[1]
local now_ms = ARGV[2]
local queue_key = ns .. ':expiration_queue'
local pool_key = ns .. ':available_gas_coins'
local count_key = ns .. ':available_coin_count'
local balance_key = ns .. ':available_coin_total_balance'
local keyset_key = ns .. ':available_gas_coin_keys'

local expired = redis.call('ZRANGEBYSCORE', queue_key, '-inf', now_ms)
local released_ids = {}
local total_count = 0
local total_balance = 0
for _, reservation_id in ipairs(expired) do
  local res_key = ns .. ':' .. reservation_id
  local data = redis.call('GET', res_key)
  if data then
    for entry in string.gmatch(data, '([^;]+)') do
      redis.call('RPUSH', pool_key, entry)
      local bal = tonumber(string.match(entry, '^(%d+),'))
      local id = string.match(entry, '^%d+,([^,]+),')
      local ver = string.match(entry, '^%d+,[^,]+,(%d+),')
      redis.call('SADD', keyset_key, id .. ':' .. ver)
      table.insert(released_ids, id)
      total_count = total_count + 1
      total_balance = total_balance + bal
    end
    redis.call('DEL', res_key)
  end
  redis.call('ZREM', queue_key, reservation_id)
end

redis.call('INCRBY', count_key, total_count)
redis.call('INCRBY', balance_key, total_balance)

return released_ids
`)

var initCoinStatsAtStartupScript = redis.NewScript(`
local ns = ARGV[1]
local pool_key = ns .. ':available_gas_coins'
local count_key = ns .. ':available_coin_count'
local balance_key = ns .. ':available_coin_total_balance'

local pool = redis.call('LRANGE', pool_key, 0, -1)
local total = 0
for _, entry in ipairs(pool) do
  local bal = tonumber(string.match(entry, '^(%d+),'))
  total = total + bal
end
local count = #pool
redis.call('SET', count_key, count)
redis.call('SET', balance_key, total)
return {count, total}
`)

var acquireLockScript = redis.NewScript(`
local ns = ARGV[1]
local lock_name = ARGV[2]
local now_sec = tonumber(ARGV[3])
local duration_sec = tonumber(ARGV[4])
local key = ns .. ':' .. lock_name
local existing = redis.call('GET', key)
if existing and tonumber(existing) > now_sec then
  return 0
end
redis.call('SET', key, now_sec + duration_sec)
return 1
`)

var releaseLockScript = redis.NewScript(`
local ns = ARGV[1]
local lock_name = ARGV[2]
redis.call('DEL', ns .. ':' .. lock_name)
return 1
`)

var cleanUpCoinRegistryScript = redis.NewScript(`
local ns = ARGV[1]
local cursor = '0'
local pattern = ns .. ':*'
local excluded = {}
excluded[ns .. ':init_lock'] = true
excluded[ns .. ':maintenance_lock'] = true
local deleted = 0
repeat
  local res = redis.call('SCAN', cursor, 'MATCH', pattern, 'COUNT', 1000)
  cursor = res[1]
  for _, k in ipairs(res[2]) do
    if not excluded[k] then
      redis.call('DEL', k)
      deleted = deleted + 1
    end
  end
until cursor == '0'
return deleted
`)

var getSchemaVersionScript = redis.NewScript(`
local sponsor = ARGV[1]
local ns = ARGV[2]
local schema_key = ns .. ':schema_version'
local v = redis.call('GET', schema_key)
if v then return tonumber(v) end
local cursor = '0'
local pattern = sponsor .. ':*'
repeat
  local res = redis.call('SCAN', cursor, 'MATCH', pattern, 'COUNT', 1000)
  cursor = res[1]
  if #res[2] > 0 then
    return 0
  end
until cursor == '0'
redis.call('SET', schema_key, 1)
return -1
`)

var migrateKeysScript = redis.NewScript(`
local sponsor = ARGV[1]
local ns = ARGV[2]
local cursor = '0'
local old_keys = {}
repeat
  local res = redis.call('SCAN', cursor, 'MATCH', sponsor .. ':*', 'COUNT', 1000)
  cursor = res[1]
  for _, k in ipairs(res[2]) do
    table.insert(old_keys, k)
  end
until cursor == '0'

local migrated = 0
local skipped = 0
local errs = 0
for _, old_key in ipairs(old_keys) do
  local suffix = string.sub(old_key, string.len(sponsor) + 1)
  local new_key = ns .. suffix
  if redis.call('EXISTS', new_key) == 1 then
    skipped = skipped + 1
  else
    local ok = pcall(function() redis.call('RENAME', old_key, new_key) end)
    if ok then
      migrated = migrated + 1
    else
      errs = errs + 1
    end
  end
end

redis.call('SET', ns .. ':schema_version', 1)
return {migrated, skipped, errs}
`)
