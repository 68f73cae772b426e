// Package worker drains the Redis-backed repair queue. A partially failed desk
// swap leaves a machine on a negative placeholder number; the workers run the
// reconciliation pass that reallocates it, off the websocket goroutines.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const repairQueue = "queue:desk-repair"

// Repairer is the reconciliation entry point, satisfied by the desk service.
type Repairer interface {
	RepairPlaceholders(ctx context.Context) (int, error)
}

type job struct {
	ID         uuid.UUID `json:"id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is the producer side, handed to the desk service.
type Queue struct {
	redis *redis.Client
}

func NewQueue(redisClient *redis.Client) *Queue {
	return &Queue{redis: redisClient}
}

func (q *Queue) Enqueue(ctx context.Context) error {
	data, err := json.Marshal(job{ID: uuid.New(), EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return q.redis.LPush(ctx, repairQueue, string(data)).Err()
}

type Pool struct {
	redis       *redis.Client
	repairer    Repairer
	workerCount int
	stopChan    chan struct{}
}

func NewPool(redisClient *redis.Client, repairer Repairer, workerCount int) *Pool {
	return &Pool{
		redis:       redisClient,
		repairer:    repairer,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, repairQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}
		if len(result) < 2 {
			continue
		}

		var j job
		if err := json.Unmarshal([]byte(result[1]), &j); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// The repair pass is idempotent, but there's no point running it from
		// two workers at once.
		lockKey := fmt.Sprintf("repair_lock:%s", j.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 5*time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		log.Printf("Worker %d: processing repair job %s", id, j.ID)

		repaired, err := p.repairer.RepairPlaceholders(ctx)
		if err != nil {
			log.Printf("Worker %d: repair job %s failed: %v", id, j.ID, err)
			// Re-queue under a fresh ID after a short backoff so a transient
			// store outage doesn't strand a placeholder.
			data, _ := json.Marshal(job{ID: uuid.New(), EnqueuedAt: time.Now().UTC()})
			time.AfterFunc(10*time.Second, func() {
				p.redis.LPush(context.Background(), repairQueue, string(data))
			})
		} else if repaired > 0 {
			log.Printf("Worker %d: repair job %s reallocated %d desks", id, j.ID, repaired)
		}

		p.redis.Del(ctx, lockKey)
	}
}
