// Command gomfa-loadtest drives a goMFA engine against Redis (or miniredis)
// with concurrent session resolution and backup-code consumption, and
// reports latency percentiles. The backup phase fails the run if any code is
// accepted twice.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/password"
	"github.com/MrEthical07/goMFA/store"
	"github.com/MrEthical07/goMFA/store/memory"
)

const loadPassword = "loadtest-password"

type account struct {
	id        string
	sessionID string
	codes     []string
	used      []int32
}

func main() {
	var (
		accounts    = flag.Int("accounts", 500, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer func() { _ = client.Close() }()

	cfg := goMFA.DefaultConfig()
	cfg.ChallengeToken.SigningMethod = "hs256"
	cfg.ChallengeToken.PrivateKey = []byte(strings.Repeat("l", 32))
	cfg.Secrets.MasterKey = []byte(strings.Repeat("t", 32))
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Login.MaxAttempts = *accounts * 4
	cfg.Audit.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = true

	mem := memory.New()
	engine, err := goMFA.New().
		WithConfig(cfg).
		WithRedis(client).
		WithStore(mem).
		WithMailer(goMFA.MailerFunc(func(context.Context, goMFA.OTPMessage) error { return nil })).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	seeded, err := seed(ctx, engine, mem, cfg.Password, *accounts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	resolveStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) bool {
		acc := seeded[r.Intn(len(seeded))]
		_, err := engine.ResolveSession(ctx, acc.sessionID)
		return err == nil
	})

	var doubleSpends int64
	backupStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) bool {
		acc := seeded[r.Intn(len(seeded))]
		i := r.Intn(len(acc.codes))
		if _, err := engine.ConsumeBackupCode(ctx, acc.id, acc.codes[i]); err != nil {
			return false
		}
		if atomic.AddInt32(&acc.used[i], 1) > 1 {
			atomic.AddInt64(&doubleSpends, 1)
		}
		return true
	})

	fmt.Println("---- results ----")
	printStats("resolve", resolveStats)
	printStats("backup", backupStats)
	fmt.Printf("backup double spends: %d\n", doubleSpends)
	if doubleSpends > 0 {
		os.Exit(1)
	}
}

func seed(ctx context.Context, engine *goMFA.Engine, mem *memory.Store, pc goMFA.PasswordConfig, n int) ([]*account, error) {
	hasher, err := password.NewHasher(password.Config{
		Memory:      pc.Memory,
		Time:        pc.Time,
		Parallelism: pc.Parallelism,
		SaltLength:  pc.SaltLength,
		KeyLength:   pc.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(loadPassword)
	if err != nil {
		return nil, err
	}

	out := make([]*account, 0, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("load-%d@gomfa.local", i)
		acc, err := mem.AddAccount(store.Account{Email: email, PasswordHash: hash, Role: store.RoleMerchant})
		if err != nil {
			return nil, err
		}
		res, err := engine.Authenticate(ctx, email, loadPassword)
		if err != nil {
			return nil, err
		}
		codes, err := engine.GenerateBackupCodes(ctx, acc.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &account{
			id:        acc.ID,
			sessionID: res.Session.ID,
			codes:     codes,
			used:      make([]int32, len(codes)),
		})
	}
	return out, nil
}

func runPhase(ops, concurrency int, salt int64, op func(r *rand.Rand) bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*salt))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				ok := op(r)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
