package loadr

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	_ "github.com/lib/pq"

	"github.com/vaibhaw-/anomr/internal/anomr/logger"
)

// preloadCache holds IDs preloaded from DB to avoid empty queries
type preloadCache struct {
	CustomerIDs []string
	ProductIDs  []string
	OrderIDs    []string
}

// RunStats summarizes a workload run.
type RunStats struct {
	Select       int
	Insert       int
	Update       int
	Errors       int
	FailedLogins int
}

func (s *RunStats) add(op string) {
	switch op {
	case "SELECT":
		s.Select++
	case "INSERT":
		s.Insert++
	case "UPDATE":
		s.Update++
	}
}

// Run executes the workload described by the YAML at configPath.
func Run(ctx context.Context, configPath string) (RunStats, error) {
	cfg, err := ReadRunConfig(configPath)
	if err != nil {
		return RunStats{}, fmt.Errorf("load run config: %w", err)
	}
	return RunWorkload(ctx, cfg)
}

// RunWorkload connects as the configured users and issues a mix of audited
// statements. With attack enabled, a burst of failed logins is fired every
// Attack.EveryOps operations.
func RunWorkload(ctx context.Context, cfg RunConfig) (RunStats, error) {
	log := logger.L()
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	log.Infow("starting run",
		"run_id", cfg.RunId,
		"db", cfg.Database,
		"ops", cfg.TotalOps,
		"concurrency", cfg.Concurrency,
		"attack", cfg.Attack.Enabled,
		"seed", seed)

	// Preload IDs using first DB user so queries always hit real rows.
	first := cfg.Users[0]
	db, err := sql.Open("postgres", buildDSN(first.Username, first.Password, cfg.Host, cfg.Port, cfg.Database))
	if err != nil {
		return RunStats{}, fmt.Errorf("preload connect: %w", err)
	}
	defer db.Close()
	cache, err := preloadAllIDs(ctx, db)
	if err != nil {
		return RunStats{}, err
	}
	log.Infow("preloaded",
		"customers", len(cache.CustomerIDs),
		"products", len(cache.ProductIDs),
		"orders", len(cache.OrderIDs))

	var (
		wg      sync.WaitGroup
		statsMu sync.Mutex
		stats   RunStats
	)
	opsCh := make(chan int)

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			f := gofakeit.New(seed + uint64(workerID))
			// Each worker connects once as one user, so its statements share
			// a pid in the server log.
			user := cfg.Users[f.Number(0, len(cfg.Users)-1)]
			dbw, err := sql.Open("postgres", buildDSN(user.Username, user.Password, cfg.Host, cfg.Port, cfg.Database))
			if err != nil {
				log.Errorw("worker connect failed", "worker", workerID, "err", err.Error())
				return
			}
			defer dbw.Close()
			dbw.SetMaxOpenConns(1)

			for range opsCh {
				op := pickOpType(cfg, f)
				query, args := generateQuery(cfg, op, user.Username, f, cache)
				if query == "" {
					continue
				}
				qctx, cancel := context.WithTimeout(ctx, 5*time.Second)
				_, err := dbw.ExecContext(qctx, query, args...)
				cancel()

				statsMu.Lock()
				if err != nil {
					stats.Errors++
					log.Debugw("exec failed", "worker", workerID, "op", op, "err", err.Error())
				} else {
					stats.add(op)
				}
				statsMu.Unlock()
			}
		}(w)
	}

	var attacks sync.WaitGroup
feed:
	for i := 0; i < cfg.TotalOps; i++ {
		if cfg.Attack.Enabled && i > 0 && i%cfg.Attack.EveryOps == 0 {
			attacks.Add(1)
			go func(f *gofakeit.Faker) {
				defer attacks.Done()
				n := bruteForce(ctx, cfg, f)
				statsMu.Lock()
				stats.FailedLogins += n
				statsMu.Unlock()
			}(gofakeit.New(seed ^ uint64(i)))
		}
		select {
		case opsCh <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(opsCh)
	wg.Wait()
	attacks.Wait()

	log.Infow("run complete",
		"select", stats.Select,
		"insert", stats.Insert,
		"update", stats.Update,
		"errors", stats.Errors,
		"failed_logins", stats.FailedLogins)
	return stats, ctx.Err()
}

// bruteForce attempts logins with guessed users and wrong passwords. Every
// attempt leaves a FATAL authentication failure in the server log.
func bruteForce(ctx context.Context, cfg RunConfig, f *gofakeit.Faker) int {
	log := logger.L()
	var tick <-chan time.Time
	if cfg.Attack.ConnectionsPS > 0 {
		t := time.NewTicker(time.Second / time.Duration(cfg.Attack.ConnectionsPS))
		defer t.Stop()
		tick = t.C
	}

	failed := 0
	for i := 0; i < cfg.Attack.FailedLogins; i++ {
		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return failed
			}
		}
		user := pick(f, GuessedUsers)
		pass := f.Password(true, true, true, false, false, 10)
		db, err := sql.Open("postgres", buildDSN(user, pass, cfg.Host, cfg.Port, cfg.Database))
		if err != nil {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := db.PingContext(pctx); err != nil {
			failed++
		}
		cancel()
		db.Close()
	}
	log.Infow("brute-force burst finished", "attempts", cfg.Attack.FailedLogins, "failed", failed)
	return failed
}

func pickOpType(cfg RunConfig, f *gofakeit.Faker) string {
	p := f.Float64()
	if p < cfg.Mix.Select {
		return "SELECT"
	}
	if p < cfg.Mix.Select+cfg.Mix.Insert {
		return "INSERT"
	}
	return "UPDATE"
}

// preloadAllIDs loads IDs from the database into memory
func preloadAllIDs(ctx context.Context, db *sql.DB) (preloadCache, error) {
	cache := preloadCache{}
	query := func(q string, dest *[]string) error {
		rows, err := db.QueryContext(ctx, q)
		if err != nil {
			return fmt.Errorf("preload %q: %w", q, err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err == nil {
				*dest = append(*dest, id)
			}
		}
		return rows.Err()
	}

	if err := query("SELECT customer_id FROM shop.customer", &cache.CustomerIDs); err != nil {
		return cache, err
	}
	if err := query("SELECT product_id FROM shop.product", &cache.ProductIDs); err != nil {
		return cache, err
	}
	if err := query("SELECT order_id FROM shop.orders", &cache.OrderIDs); err != nil {
		return cache, err
	}
	return cache, nil
}

// generateQuery builds a query string + args for op. It returns an empty
// query when the cache has no rows to reference.
func generateQuery(cfg RunConfig, op, username string, f *gofakeit.Faker, cache preloadCache) (string, []interface{}) {
	comment := fmt.Sprintf("/* run_id=%s op=%s user=%s */ ", cfg.RunId, op, username)

	switch op {
	case "SELECT":
		if len(cache.CustomerIDs) == 0 {
			return "", nil
		}
		return comment + "SELECT o.order_id, o.status, p.name FROM shop.orders o " +
			"JOIN shop.product p ON p.product_id = o.product_id WHERE o.customer_id = $1 LIMIT 10",
			[]interface{}{pick(f, cache.CustomerIDs)}

	case "INSERT":
		if len(cache.CustomerIDs) == 0 || len(cache.ProductIDs) == 0 {
			return "", nil
		}
		return comment + "INSERT INTO shop.orders (order_id, customer_id, product_id, quantity, status) VALUES ($1, $2, $3, $4, $5)",
			[]interface{}{f.UUID(), pick(f, cache.CustomerIDs), pick(f, cache.ProductIDs), f.Number(1, 5), "PENDING"}

	case "UPDATE":
		if len(cache.OrderIDs) == 0 {
			return "", nil
		}
		return comment + "UPDATE shop.orders SET status = $1 WHERE order_id = $2",
			[]interface{}{pick(f, OrderStatuses), pick(f, cache.OrderIDs)}
	}
	return "", nil
}
