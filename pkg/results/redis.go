package results

import (
    "encoding/json"
    "fmt"

    "gopkg.in/redis.v5"

    "latdecomp/pkg/tracker"
)

// RedisSink replaces a redis list with one JSON document per record and
// stores the batch summary under <key>:summary.
type RedisSink struct {
    client *redis.Client
    key    string
}

// NewRedisSink connects and pings the server.
func NewRedisSink(addr, password string, db int, key string) (*RedisSink, error) {
    client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
    if err := client.Ping().Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("redis ping %s: %w", addr, err)
    }
    return &RedisSink{client: client, key: key}, nil
}

func (s *RedisSink) Write(variant Variant, recs []tracker.LatencyRecord) error {
    items, summary, err := redisPayload(variant, recs)
    if err != nil { return err }
    if err := s.client.Del(s.key).Err(); err != nil { return err }
    if len(items) > 0 {
        if err := s.client.RPush(s.key, items...).Err(); err != nil { return err }
    }
    return s.client.Set(s.key+":summary", summary, 0).Err()
}

func (s *RedisSink) Close() error { return s.client.Close() }

// redisPayload encodes list items and the summary document.
func redisPayload(variant Variant, recs []tracker.LatencyRecord) ([]interface{}, string, error) {
    items := make([]interface{}, 0, len(recs))
    for _, r := range recs {
        b, err := json.Marshal(r)
        if err != nil { return nil, "", err }
        items = append(items, string(b))
    }
    b := NewBatch(variant, recs)
    sb, err := json.Marshal(struct {
        Variant string  `json:"variant"`
        Summary Summary `json:"summary"`
    }{b.Variant, b.Summary})
    if err != nil { return nil, "", err }
    return items, string(sb), nil
}
