package nodestate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func metaKey(nodeID string) string {
	return fmt.Sprintf("meshmon:node:%s:meta", nodeID)
}

const allNodesKey = "meshmon:nodes"

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) SetNodeMeta(ctx context.Context, meta *NodeMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, metaKey(meta.ID), data, 0)
	pipe.SAdd(ctx, allNodesKey, meta.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetNodeMeta(ctx context.Context, nodeID string) (*NodeMeta, error) {
	data, err := r.client.Get(ctx, metaKey(nodeID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta NodeMeta
	return &meta, json.Unmarshal(data, &meta)
}

func (r *RedisStore) GetAllNodeIDs(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, allNodesKey).Result()
}

func (r *RedisStore) RemoveNode(ctx context.Context, nodeID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, metaKey(nodeID))
	pipe.SRem(ctx, allNodesKey, nodeID)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) FlushAll(ctx context.Context) error {
	ids, err := r.GetAllNodeIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.RemoveNode(ctx, id); err != nil {
			return err
		}
	}
	return r.client.Del(ctx, allNodesKey).Err()
}
