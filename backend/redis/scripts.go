package redis

import goredis "github.com/redis/go-redis/v9"

// Every script addresses one value: with ARGV[1] == 'k' the string at KEYS[1],
// with ARGV[1] == 'h' field ARGV[2] of the hash at KEYS[1]. Hashes are
// compared server side with redis.sha1hex, which matches etag.Of.

const (
	modeKey  = "k"
	modeHash = "h"
)

const readValue = `
local function read()
  if ARGV[1] == 'k' then
    return redis.call('GET', KEYS[1])
  end
  return redis.call('HGET', KEYS[1], ARGV[2])
end
`

// ARGV[3] value, ARGV[4] expected hash. Returns {swapped, current}.
var putIfMatch = goredis.NewScript(readValue + `
local cur = read()
if cur and ARGV[4] ~= '' then
  local tag = redis.sha1hex(cur)
  if tag ~= ARGV[4] then
    return {0, tag}
  end
end
if ARGV[1] == 'k' then
  redis.call('SET', KEYS[1], ARGV[3])
else
  redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
end
return {1, ''}
`)

// ARGV[3] expected hash. Returns {found, deleted, current}.
var delIfMatch = goredis.NewScript(readValue + `
local cur = read()
if not cur then
  return {0, 0, ''}
end
local tag = redis.sha1hex(cur)
if ARGV[3] ~= '' and tag ~= ARGV[3] then
  return {1, 0, tag}
end
if ARGV[1] == 'k' then
  redis.call('DEL', KEYS[1])
else
  redis.call('HDEL', KEYS[1], ARGV[2])
end
return {1, 1, tag}
`)

// Returns the hash of the value, or nil on miss.
var hashOf = goredis.NewScript(readValue + `
local cur = read()
if not cur then
  return false
end
return redis.sha1hex(cur)
`)

// target is the value a script operates on.
type target struct {
	key   string
	mode  string
	field string
}

func keyTarget(key string) target { return target{key: key, mode: modeKey} }

func fieldTarget(hash, field string) target {
	return target{key: hash, mode: modeHash, field: field}
}
