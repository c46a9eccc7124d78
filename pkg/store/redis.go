package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client the container uses.
type RedisClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	Close() error
}

// putScript replaces the hash at KEYS[1] and indexes ARGV[2] in KEYS[2] in
// one atomic step. ARGV[1] is "1" to allow replacing an existing record;
// field name/value pairs follow from ARGV[3]. It returns -1 when the record
// exists and may not be replaced, otherwise whether one was replaced.
const putScript = `
local existed = redis.call('EXISTS', KEYS[1])
if existed == 1 and ARGV[1] ~= '1' then
	return -1
end
redis.call('DEL', KEYS[1])
for i = 3, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('SADD', KEYS[2], ARGV[2])
return existed
`

// deleteScript removes the hash at KEYS[1] and ARGV[1] from the index KEYS[2].
const deleteScript = `
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
return 1
`

// RedisContainer keeps each record in a hash at prefix+":subject:"+id and
// the set of ids at prefix+":subjects".
type RedisContainer struct {
	client RedisClient
	prefix string
}

// NewRedisContainer wraps an existing client.
func NewRedisContainer(client RedisClient, prefix string) *RedisContainer {
	if prefix == "" {
		prefix = "volprep"
	}
	return &RedisContainer{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, prefix string) (*RedisContainer, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedisContainer(client, prefix), nil
}

func (r *RedisContainer) recordKey(id string) string {
	return r.prefix + ":subject:" + id
}

func (r *RedisContainer) indexKey() string {
	return r.prefix + ":subjects"
}

func (r *RedisContainer) Put(ctx context.Context, id string, fields Fields, replace bool) (bool, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	flag := "0"
	if replace {
		flag = "1"
	}
	args := make([]any, 0, 2+2*len(names))
	args = append(args, flag, id)
	for _, name := range names {
		args = append(args, name, fields[name])
	}

	key := r.recordKey(id)
	n, err := r.client.Eval(ctx, putScript, []string{key, r.indexKey()}, args...).Int64()
	if err != nil {
		return false, fmt.Errorf("writing %s: %w", key, err)
	}
	if n < 0 {
		return false, fmt.Errorf("%w: %q", ErrSubjectExists, id)
	}
	return n == 1, nil
}

func (r *RedisContainer) Get(ctx context.Context, id string) (Fields, error) {
	m, err := r.client.HGetAll(ctx, r.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.recordKey(id), err)
	}
	// HGETALL on a missing key is an empty map
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrSubjectNotFound, id)
	}
	fields := make(Fields, len(m))
	for name, s := range m {
		fields[name] = []byte(s)
	}
	return fields, nil
}

func (r *RedisContainer) Delete(ctx context.Context, id string) error {
	return r.client.Eval(ctx, deleteScript, []string{r.recordKey(id), r.indexKey()}, id).Err()
}

func (r *RedisContainer) List(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, r.indexKey()).Result()
}

func (r *RedisContainer) Close() error {
	return r.client.Close()
}
