package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	goredis "github.com/redis/go-redis/v9"

	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/debug"
	"github.com/peternagy/tablemoins/internal/types"
)

// Tokenize splits a command line into arguments. Single and double quotes
// group words; inside double quotes \n, \t, \r, \" and \\ are unescaped.
func Tokenize(line string) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		inToken bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			switch r {
			case 'n':
				cur.WriteRune('\n')
			case 't':
				cur.WriteRune('\t')
			case 'r':
				cur.WriteRune('\r')
			default:
				cur.WriteRune(r)
			}
			escaped = false
		case quote != 0:
			switch {
			case r == '\\' && quote == '"':
				escaped = true
			case r == quote:
				quote = 0
			default:
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case unicode.IsSpace(r):
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unbalanced quotes in command")
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// singleKeyCommands mutate exactly the key named by their first argument.
var singleKeyCommands = map[string]bool{
	"SET": true, "SETEX": true, "SETNX": true, "PSETEX": true, "APPEND": true, "GETSET": true, "GETDEL": true,
	"INCR": true, "DECR": true, "INCRBY": true, "DECRBY": true, "INCRBYFLOAT": true,
	"EXPIRE": true, "PEXPIRE": true, "EXPIREAT": true, "PEXPIREAT": true, "PERSIST": true,
	"HSET": true, "HSETNX": true, "HMSET": true, "HDEL": true, "HINCRBY": true, "HINCRBYFLOAT": true,
	"LPUSH": true, "RPUSH": true, "LPUSHX": true, "RPUSHX": true, "LPOP": true, "RPOP": true,
	"LSET": true, "LREM": true, "LTRIM": true, "LINSERT": true,
	"SADD": true, "SREM": true, "SPOP": true,
	"ZADD": true, "ZREM": true, "ZINCRBY": true, "ZPOPMIN": true, "ZPOPMAX": true,
	"XADD": true, "XDEL": true, "XTRIM": true,
}

// AffectedKeys returns the keys a command mutates: the first argument for
// single-key mutators, every argument for DEL and UNLINK, the key positions
// of MSET, and both names for RENAME.
func AffectedKeys(args []string) []string {
	if len(args) < 2 {
		return nil
	}
	name := strings.ToUpper(args[0])
	rest := args[1:]
	switch {
	case name == "DEL" || name == "UNLINK":
		return append([]string(nil), rest...)
	case name == "MSET" || name == "MSETNX":
		var keys []string
		for i := 0; i < len(rest); i += 2 {
			keys = append(keys, rest[i])
		}
		return keys
	case name == "RENAME" || name == "RENAMENX":
		if len(rest) >= 2 {
			return []string{rest[0], rest[1]}
		}
		return []string{rest[0]}
	case singleKeyCommands[name]:
		return []string{rest[0]}
	}
	return nil
}

// ExecuteCommand runs one command line and wraps the outcome in a
// CommandResult. Errors never escape the envelope.
func (d *Driver) ExecuteCommand(ctx context.Context, line string) *types.CommandResult {
	line = strings.TrimSpace(line)
	result := &types.CommandResult{Command: line}
	start := time.Now()

	fail := func(err error) *types.CommandResult {
		result.Status = types.CommandError
		result.Error = err.Error()
		result.ElapsedMs = core.ElapsedMs(start)
		debug.LogKV("Command failed", map[string]interface{}{"command": line, "error": result.Error})
		return result
	}

	client, err := d.getClient()
	if err != nil {
		return fail(err)
	}
	args, err := Tokenize(line)
	if err != nil {
		return fail(err)
	}
	if len(args) == 0 {
		return fail(errors.New("empty command"))
	}

	ctx, cancel := core.WithTimeout(ctx, d.cfg.Timeouts.Statement)
	defer cancel()

	value, err := d.run(ctx, client, args)
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fail(err)
	}

	result.Status = types.CommandSuccess
	result.Result = value
	result.AffectedKeys = AffectedKeys(args)
	result.ElapsedMs = core.ElapsedMs(start)
	debug.LogKV("Command executed", map[string]interface{}{"command": strings.ToUpper(args[0]), "elapsedMs": result.ElapsedMs})
	return result
}

// run dispatches common commands to typed client calls and everything else
// to Do.
func (d *Driver) run(ctx context.Context, client *goredis.Client, args []string) (any, error) {
	name := strings.ToUpper(args[0])
	rest := args[1:]

	switch {
	case name == "GET" && len(rest) == 1:
		v, err := client.Get(ctx, rest[0]).Result()
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return v, err
	case name == "SET" && len(rest) == 2:
		return client.Set(ctx, rest[0], rest[1], 0).Result()
	case name == "KEYS" && len(rest) == 1:
		return client.Keys(ctx, rest[0]).Result()
	case name == "SCAN" && len(rest) >= 1:
		return d.runScan(ctx, client, rest)
	case name == "PING" && len(rest) == 0:
		return client.Ping(ctx).Result()
	case name == "INFO":
		return client.Info(ctx, rest...).Result()
	case name == "TYPE" && len(rest) == 1:
		return client.Type(ctx, rest[0]).Result()
	case name == "TTL" && len(rest) == 1:
		ttl, err := client.TTL(ctx, rest[0]).Result()
		return ttlSeconds(ttl), err
	case name == "DEL" && len(rest) >= 1:
		return client.Del(ctx, rest...).Result()
	case name == "EXISTS" && len(rest) >= 1:
		return client.Exists(ctx, rest...).Result()
	case name == "DBSIZE" && len(rest) == 0:
		return client.DBSize(ctx).Result()
	}

	doArgs := make([]interface{}, len(args))
	for i, a := range args {
		doArgs[i] = a
	}
	v, err := client.Do(ctx, doArgs...).Result()
	if err != nil {
		return nil, err
	}
	return normalizeReply(v), nil
}

// runScan handles SCAN cursor [MATCH pattern] [COUNT n].
func (d *Driver) runScan(ctx context.Context, client *goredis.Client, rest []string) (any, error) {
	cursor, err := strconv.ParseUint(rest[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor %q", rest[0])
	}
	match := ""
	count := d.cfg.KV.ScanCount
	for i := 1; i+1 < len(rest); i += 2 {
		switch strings.ToUpper(rest[i]) {
		case "MATCH":
			match = rest[i+1]
		case "COUNT":
			if count, err = strconv.ParseInt(rest[i+1], 10, 64); err != nil {
				return nil, fmt.Errorf("invalid count %q", rest[i+1])
			}
		default:
			return nil, fmt.Errorf("unsupported SCAN option %q", rest[i])
		}
	}
	keys, next, err := client.Scan(ctx, cursor, match, count).Result()
	if err != nil {
		return nil, err
	}
	return map[string]any{"cursor": strconv.FormatUint(next, 10), "keys": keys}, nil
}

// normalizeReply converts raw replies into JSON friendly values.
func normalizeReply(v any) any {
	switch val := v.(type) {
	case []interface{}:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeReply(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeReply(item)
		}
		return out
	case []byte:
		return string(val)
	}
	return v
}
