package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/debug"
	"github.com/peternagy/tablemoins/internal/driver/sqlutil"
	"github.com/peternagy/tablemoins/internal/types"
)

// walk chains SCAN cursors over pattern until the cursor returns to 0 or fn
// asks to stop. ctx is checked between batches. It returns the number of keys
// visited and the cursor reached.
func (d *Driver) walk(ctx context.Context, client *goredis.Client, pattern string, fn func(keys []string) bool) (int64, uint64, error) {
	var (
		cursor  uint64
		visited int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return visited, cursor, err
		}
		keys, next, err := client.Scan(ctx, cursor, pattern, d.cfg.KV.ScanCount).Result()
		if err != nil {
			return visited, cursor, err
		}
		visited += int64(len(keys))
		if len(keys) > 0 && fn(keys) {
			return visited, next, nil
		}
		cursor = next
		if cursor == 0 {
			return visited, 0, nil
		}
	}
}

// collectKeys returns the distinct keys matching pattern in sorted order.
// limit <= 0 means no limit.
func (d *Driver) collectKeys(ctx context.Context, client *goredis.Client, pattern string, limit int) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string
	_, cursor, err := d.walk(ctx, client, pattern, func(batch []string) bool {
		for _, k := range batch {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
			if limit > 0 && len(keys) >= limit {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, &core.ScanInterruptedError{Pattern: pattern, Cursor: cursor, Processed: int64(len(keys)), Err: err}
	}
	sort.Strings(keys)
	return keys, nil
}

// ScanKeys performs one SCAN step and describes the returned keys.
func (d *Driver) ScanKeys(ctx context.Context, cursor uint64, pattern string, count int64) (*types.ScanResult, error) {
	client, err := d.getClient()
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}
	if count <= 0 {
		count = d.cfg.KV.ScanCount
	}

	keys, next, err := client.Scan(ctx, cursor, pattern, count).Result()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	entries, err := describeKeys(ctx, client, keys)
	if err != nil {
		return nil, err
	}
	return &types.ScanResult{Keys: entries, Cursor: next, HasMore: next != 0}, nil
}

// describeKeys resolves kind, TTL and size for keys using two pipelines.
func describeKeys(ctx context.Context, client *goredis.Client, keys []string) ([]types.KeyEntry, error) {
	entries := make([]types.KeyEntry, len(keys))
	if len(keys) == 0 {
		return entries, nil
	}

	typeCmds := make([]*goredis.StatusCmd, len(keys))
	ttlCmds := make([]*goredis.DurationCmd, len(keys))
	if _, err := client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, k := range keys {
			typeCmds[i] = p.Type(ctx, k)
			ttlCmds[i] = p.TTL(ctx, k)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to describe keys: %w", err)
	}

	sizeCmds := make([]*goredis.IntCmd, len(keys))
	if _, err := client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, k := range keys {
			kind := types.KeyKind(typeCmds[i].Val())
			entries[i] = types.KeyEntry{Key: k, Kind: kind, TTL: ttlSeconds(ttlCmds[i].Val())}
			sizeCmds[i] = sizeCmd(ctx, p, kind, k)
		}
		return nil
	}); err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("failed to size keys: %w", err)
	}

	for i, cmd := range sizeCmds {
		if cmd != nil {
			entries[i].Size = cmd.Val()
		}
	}
	return entries, nil
}

// sizeCmd queues the cardinality command matching kind. It returns nil for
// kinds without one.
func sizeCmd(ctx context.Context, c goredis.Cmdable, kind types.KeyKind, key string) *goredis.IntCmd {
	switch kind {
	case types.KindString:
		return c.StrLen(ctx, key)
	case types.KindHash:
		return c.HLen(ctx, key)
	case types.KindList:
		return c.LLen(ctx, key)
	case types.KindSet:
		return c.SCard(ctx, key)
	case types.KindZSet:
		return c.ZCard(ctx, key)
	case types.KindStream:
		return c.XLen(ctx, key)
	}
	return nil
}

// ttlSeconds converts a TTL reply. go-redis reports the -1 (no expiry) and
// -2 (missing) sentinels as raw nanosecond counts.
func ttlSeconds(d time.Duration) int64 {
	if d < 0 {
		return int64(d)
	}
	return int64(d / time.Second)
}

// GetKey reads key with the primitive matching its kind.
func (d *Driver) GetKey(ctx context.Context, key string) (*types.KeyValue, error) {
	client, err := d.getClient()
	if err != nil {
		return nil, err
	}

	ctx, cancel := core.WithTimeout(ctx, d.cfg.Timeouts.Statement)
	defer cancel()

	kindName, err := client.Type(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read type of %q: %w", key, err)
	}
	kind := types.KeyKind(kindName)
	kv := &types.KeyValue{KeyEntry: types.KeyEntry{Key: key, Kind: kind}}

	if kind == types.KindNone {
		kv.TTL = -2
		return kv, nil
	}

	ttl, err := client.TTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ttl of %q: %w", key, err)
	}
	kv.TTL = ttlSeconds(ttl)

	var sizeErr error
	switch kind {
	case types.KindString:
		kv.Value, err = client.Get(ctx, key).Result()
		kv.Size, sizeErr = client.StrLen(ctx, key).Result()
	case types.KindHash:
		kv.Value, err = client.HGetAll(ctx, key).Result()
		kv.Size, sizeErr = client.HLen(ctx, key).Result()
	case types.KindList:
		kv.Value, err = client.LRange(ctx, key, 0, -1).Result()
		kv.Size, sizeErr = client.LLen(ctx, key).Result()
	case types.KindSet:
		var members []string
		members, err = client.SMembers(ctx, key).Result()
		sort.Strings(members)
		kv.Value = members
		kv.Size, sizeErr = client.SCard(ctx, key).Result()
	case types.KindZSet:
		var zs []goredis.Z
		zs, err = client.ZRangeWithScores(ctx, key, 0, -1).Result()
		members := make([]types.ZMember, len(zs))
		for i, z := range zs {
			members[i] = types.ZMember{Member: fmt.Sprint(z.Member), Score: z.Score}
		}
		kv.Value = members
		kv.Size, sizeErr = client.ZCard(ctx, key).Result()
	case types.KindStream:
		kv.Value, err = client.XRange(ctx, key, "-", "+").Result()
		kv.Size, sizeErr = client.XLen(ctx, key).Result()
	default:
		return nil, fmt.Errorf("unsupported key kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	if sizeErr != nil {
		return nil, fmt.Errorf("failed to read size of %q: %w", key, sizeErr)
	}
	return kv, nil
}

// DeleteByPattern walks every key matching pattern and deletes them in
// batches. A failed walk deletes nothing and reports how far it got.
func (d *Driver) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	client, err := d.getClient()
	if err != nil {
		return 0, err
	}
	if pattern == "" {
		return 0, fmt.Errorf("delete pattern must not be empty")
	}

	keys, err := d.collectKeys(ctx, client, pattern, 0)
	if err != nil {
		return 0, err
	}

	var deleted int64
	batch := d.cfg.KV.DeleteBatchSize
	for start := 0; start < len(keys); start += batch {
		end := start + batch
		if end > len(keys) {
			end = len(keys)
		}
		n, err := client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to delete keys: %w", err)
		}
		deleted += n
	}

	debug.LogKV("Keys deleted by pattern", map[string]interface{}{"pattern": pattern, "deleted": deleted})
	return deleted, nil
}

// CountKeys walks the keyspace and counts distinct keys matching pattern.
func (d *Driver) CountKeys(ctx context.Context, pattern string) (int64, error) {
	client, err := d.getClient()
	if err != nil {
		return 0, err
	}
	if pattern == "" {
		pattern = "*"
	}
	keys, err := d.collectKeys(ctx, client, pattern, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

// ListDatabases reports every logical database with its key count. Databases
// absent from INFO keyspace hold no keys.
func (d *Driver) ListDatabases(ctx context.Context) ([]types.DatabaseInfo, error) {
	client, err := d.getClient()
	if err != nil {
		return nil, err
	}

	count := DefaultDatabaseCount
	if cfg, err := client.ConfigGet(ctx, "databases").Result(); err == nil {
		if n, err := strconv.Atoi(cfg["databases"]); err == nil && n > 0 {
			count = n
		}
	}

	keyCounts := make(map[string]int64)
	if raw, err := client.Info(ctx, "keyspace").Result(); err == nil {
		for name, v := range parseInfo(raw) {
			for _, part := range strings.Split(v, ",") {
				if k, n, ok := strings.Cut(part, "="); ok && k == "keys" {
					keyCounts[strings.TrimPrefix(name, "db")], _ = strconv.ParseInt(n, 10, 64)
				}
			}
		}
	} else {
		current, _ := d.DB()
		if n, err := client.DBSize(ctx).Result(); err == nil {
			keyCounts[strconv.Itoa(current)] = n
		}
	}

	databases := make([]types.DatabaseInfo, count)
	for i := range databases {
		name := strconv.Itoa(i)
		databases[i] = types.DatabaseInfo{Name: name, Keys: keyCounts[name]}
	}
	return databases, nil
}

// ListSchemas returns the logical database indexes.
func (d *Driver) ListSchemas(ctx context.Context, database string) ([]string, error) {
	databases, err := d.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(databases))
	for i, db := range databases {
		names[i] = db.Name
	}
	return names, nil
}

// ListTables renders up to MaxWalkKeys keys of the selected database as
// schema objects. schema names a database index ("3" or "db3"); it must be
// empty or the index this connection selected.
func (d *Driver) ListTables(ctx context.Context, schema string) ([]types.SchemaObject, error) {
	client, err := d.getClient()
	if err != nil {
		return nil, err
	}
	db, err := d.DB()
	if err != nil {
		return nil, err
	}
	if s := strings.TrimPrefix(strings.TrimSpace(schema), "db"); s != "" && s != strconv.Itoa(db) {
		return nil, fmt.Errorf("database %s is not selected on this connection (selected: %d)", schema, db)
	}

	keys, err := d.collectKeys(ctx, client, "*", d.cfg.KV.MaxWalkKeys)
	if err != nil {
		return nil, err
	}

	objects := make([]types.SchemaObject, len(keys))
	for i, k := range keys {
		objects[i] = types.SchemaObject{Name: k, Schema: strconv.Itoa(db), Type: "key"}
	}
	return objects, nil
}

// keyColumns is the fixed column set of a key listing.
var keyColumns = []types.ColumnInfo{
	{Name: "key", DataType: sqlutil.TypeVarchar, NativeType: "key", IsPrimaryKey: true, Position: 1},
	{Name: "kind", DataType: sqlutil.TypeVarchar, NativeType: "type", Position: 2},
	{Name: "ttl", DataType: sqlutil.TypeBigInt, NativeType: "integer", Position: 3},
	{Name: "size", DataType: sqlutil.TypeBigInt, NativeType: "integer", Position: 4},
}

// ListColumns returns the fixed columns every key listing carries.
func (d *Driver) ListColumns(ctx context.Context, schema, table string) ([]types.ColumnInfo, error) {
	if _, err := d.getClient(); err != nil {
		return nil, err
	}
	out := make([]types.ColumnInfo, len(keyColumns))
	copy(out, keyColumns)
	return out, nil
}

// PagedRead pages through the keys matching opts.Filter (or target when the
// filter is empty), sorted by name.
func (d *Driver) PagedRead(ctx context.Context, target string, opts types.PageOptions) (*types.PageResult, error) {
	client, err := d.getClient()
	if err != nil {
		return nil, err
	}

	ctx, cancel := core.WithTimeout(ctx, d.cfg.Timeouts.Statement)
	defer cancel()

	opts = sqlutil.NormalizePage(opts)
	pattern := opts.Filter
	if pattern == "" {
		pattern = target
	}
	if pattern == "" {
		pattern = "*"
	}
	start := time.Now()

	keys, err := d.collectKeys(ctx, client, pattern, 0)
	if err != nil {
		return nil, err
	}
	if opts.Sort != nil && opts.Sort.Desc {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	}

	total := int64(len(keys))
	from := opts.Offset
	if from > len(keys) {
		from = len(keys)
	}
	to := from + opts.Limit
	if to > len(keys) {
		to = len(keys)
	}

	entries, err := describeKeys(ctx, client, keys[from:to])
	if err != nil {
		return nil, err
	}

	columns := make([]types.ColumnMeta, len(keyColumns))
	for i, c := range keyColumns {
		columns[i] = types.ColumnMeta{Name: c.Name, DataType: c.DataType}
	}
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{e.Key, string(e.Kind), e.TTL, e.Size}
	}

	return &types.PageResult{
		Columns:   columns,
		Rows:      rows,
		Total:     total,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
		ElapsedMs: core.ElapsedMs(start),
	}, nil
}
