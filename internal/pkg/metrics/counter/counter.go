package counter

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JonasWeigert/VowPix/internal/pkg/cache"
	"github.com/JonasWeigert/VowPix/internal/pkg/database"
)

const (
	styleCountersKey = "generation:counters:styles"
)

// AddStyleGeneration increments the pending generation counter for a style in Redis
func AddStyleGeneration(style string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, styleCountersKey, style, 1).Err()
}

// FlushAll flushes buffered style counters to the database
func FlushAll() error {
	return flushStyleCounters()
}

// flushStyleCounters drains the Redis hash atomically and applies batched
// increments to generation_style_stats. Uses RENAME to a temporary key for
// atomic drain without losing in-flight increments.
func flushStyleCounters() error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := styleCountersKey + ":tmp:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := rdb.Do(ctx, "RENAME", styleCountersKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		// Some Redis libs return redis.Nil; treat as empty
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	type pair struct {
		style string
		inc   int64
	}
	pairs := make([]pair, 0, len(data))
	for style, v := range data {
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc <= 0 {
			continue
		}
		pairs = append(pairs, pair{style: style, inc: inc})
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].style < pairs[j].style })

	// Upsert so first-seen styles create their row
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*2)
	builder.WriteString("INSERT INTO generation_style_stats (style, generation_count, created_at, updated_at) VALUES ")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("(?, ?, NOW(), NOW())")
		args = append(args, p.style, p.inc)
	}
	builder.WriteString(" ON DUPLICATE KEY UPDATE generation_count = generation_count + VALUES(generation_count), updated_at = NOW()")

	db := database.GetDB()
	if err := db.Exec(builder.String(), args...).Error; err != nil {
		return err
	}
	return nil
}
