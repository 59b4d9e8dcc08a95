package flight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/irsalhamdi/storefront-checkout/core/failure"
	"github.com/irsalhamdi/storefront-checkout/random"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Only the holder of the token may delete the lock; an expired lock taken over
// by another instance stays untouched.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lock only while the token still owns it.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis shares the lock between instances. A live holder keeps renewing the
// lock every third of the ttl until it releases it, so the ttl only bounds how
// long a crashed holder blocks the cart.
type Redis struct {
	log    logrus.FieldLogger
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(log logrus.FieldLogger, client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{log: log, client: client, ttl: ttl}
}

func (r *Redis) TryAcquire(ctx context.Context, key string) (func(), error) {
	token, err := random.StringSecure(24)
	if err != nil {
		return nil, fmt.Errorf("generating lock token: %w", err)
	}

	ok, err := r.client.SetNX(ctx, lockKey(key), token, r.ttl).Result()
	if err != nil {
		return nil, failure.Wrap(err, failure.Backend, "lock_unavailable", "lock store unavailable")
	}
	if !ok {
		return nil, failure.ErrInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.renew(key, token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			if err := releaseScript.Run(ctx, r.client, []string{lockKey(key)}, token).Err(); err != nil {
				r.log.WithField("lock", key).Warnf("releasing lock: %v", err)
			}
		})
	}, nil
}

func (r *Redis) renew(key, token string, stop <-chan struct{}) {
	t := time.NewTicker(r.ttl / 3)
	defer t.Stop()

	log := r.log.WithField("lock", key)
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
		n, err := renewScript.Run(ctx, r.client, []string{lockKey(key)}, token, r.ttl.Milliseconds()).Int()
		cancel()

		switch {
		case err != nil:
			log.Warnf("renewing lock: %v", err)
		case n == 0:
			log.Error("lock lost before release")
			return
		}
	}
}

func lockKey(key string) string {
	return "checkout:lock:" + key
}
