// Package crank settles filled pool orders on a live cluster. SettleFunds needs no
// signature from the pool's owners, so anyone may run it.
package crank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/signalpool/internal/config"
	"github.com/coldbell/signalpool/internal/instruction"
	"github.com/coldbell/signalpool/internal/pool"
	"github.com/coldbell/signalpool/internal/serum"
)

type Service struct {
	cfg     config.CrankConfig
	chain   Chain
	journal Journal
	metrics *Metrics
	watcher Watcher
	logger  *slog.Logger
	now     func() time.Time
}

func New(ctx context.Context, cfg config.CrankConfig, logger *slog.Logger) (*Service, error) {
	signer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair %q: %w", cfg.KeypairPath, err)
	}
	chain := &rpcChain{
		rpc:           rpc.New(cfg.RPCURL),
		signer:        signer,
		commitment:    cfg.Commitment,
		skipPreflight: cfg.SkipPreflight,
		maxRetries:    cfg.MaxRetries,
		txTimeout:     cfg.TxTimeout,
	}

	journal := NewMemoryJournal()
	if cfg.JournalDSN != "" {
		journal, err = NewPostgresJournal(ctx, cfg.JournalDSN)
		if err != nil {
			return nil, err
		}
	}

	s := newService(cfg, chain, journal, NewMetrics(), logger)
	if cfg.Subscribe && cfg.WSURL != "" {
		watcher, err := newWSWatcher(ctx, cfg.WSURL, cfg.Commitment, cfg.OpenOrdersLayout, logger)
		if err != nil {
			_ = journal.Close()
			return nil, err
		}
		s.watcher = watcher
	}
	logger.Info("crank fee payer loaded", "payer", signer.PublicKey())
	return s, nil
}

func newService(cfg config.CrankConfig, chain Chain, journal Journal, metrics *Metrics, logger *slog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		chain:   chain,
		journal: journal,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("crank started",
		"rpc", s.cfg.RPCURL,
		"commitment", s.cfg.Commitment,
		"program", s.cfg.ProgramID,
		"pools", len(s.cfg.Pools),
		"subscribe", s.watcher != nil,
	)
	defer s.close()

	if s.cfg.MetricsListenAddr != "" {
		server := &http.Server{Addr: s.cfg.MetricsListenAddr, Handler: s.metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server failed", "addr", s.cfg.MetricsListenAddr, "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if s.watcher != nil {
		wake = s.watcher.C()
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("crank stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		case <-wake:
			s.logger.Debug("crank woken by open orders change")
			s.tick(ctx)
		}
	}
}

func (s *Service) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *Service) close() {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	if err := s.journal.Close(); err != nil {
		s.logger.Warn("journal close failed", "err", err)
	}
}

// tick plans every configured pool and sends at most MaxSettlesPerTick settlements.
func (s *Service) tick(ctx context.Context) {
	started := s.now()
	defer func() {
		s.metrics.TickDuration.Observe(s.now().Sub(started).Seconds())
	}()

	markets := make(map[solana.PublicKey]*serum.Market)
	budget := s.cfg.MaxSettlesPerTick
	attempted, settled, failed, cooling := 0, 0, 0, 0
	for _, seed := range s.cfg.Pools {
		if ctx.Err() != nil {
			return
		}
		plan, err := s.planPool(ctx, seed, markets)
		if err != nil {
			s.metrics.TickErrors.Inc()
			s.logger.Warn("pool planning failed", "pool_seed", seed, "err", err)
			continue
		}
		s.metrics.PendingOrders.WithLabelValues(plan.key.String()).Set(float64(plan.status.Pending()))
		if plan.status.HasPending() && s.watcher != nil {
			if err := s.watcher.Watch(ctx, plan.exchange, plan.key); err != nil {
				s.logger.Warn("open orders subscription failed", "pool", plan.key, "err", err)
			}
		}
		if len(plan.settlements) == 0 {
			continue
		}

		cool, err := s.coolingDown(ctx, plan.key)
		if err != nil {
			s.logger.Warn("journal lookup failed", "pool", plan.key, "err", err)
		}
		if cool {
			cooling++
			s.metrics.SettleAttempts.WithLabelValues(plan.key.String(), resultCooldown).Inc()
			continue
		}

		for _, st := range plan.settlements {
			if budget <= 0 {
				break
			}
			budget--
			attempted++
			if s.settle(ctx, st) == resultSettled {
				settled++
			} else {
				failed++
			}
		}
	}

	s.logger.Info("crank tick complete",
		"pools", len(s.cfg.Pools),
		"attempted", attempted,
		"settled", settled,
		"failed", failed,
		"cooling_down", cooling,
	)
}

// coolingDown reports whether the pool's last attempt hit Overflow within the cooldown.
func (s *Service) coolingDown(ctx context.Context, poolKey solana.PublicKey) (bool, error) {
	if s.cfg.OverflowCooldown <= 0 {
		return false, nil
	}
	last, ok, err := s.journal.LastAttempt(ctx, poolKey)
	if err != nil || !ok {
		return false, err
	}
	return last.Result == resultOverflow && s.now().Sub(last.At) < s.cfg.OverflowCooldown, nil
}

func (s *Service) settle(ctx context.Context, st settlement) string {
	poolLabel := st.pool.String()
	s.metrics.FreeFunds.WithLabelValues(poolLabel, st.openOrders.String(), "coin").Set(float64(st.funds.CoinFree))
	s.metrics.FreeFunds.WithLabelValues(poolLabel, st.openOrders.String(), "pc").Set(float64(st.funds.PCFree))

	attempt := Attempt{Pool: st.pool, OpenOrders: st.openOrders, Market: st.market, At: s.now()}
	signature, err := s.sendSettle(ctx, st)
	attempt.Signature = signature
	attempt.Result = classify(err)
	if err != nil {
		attempt.Err = err.Error()
		s.logger.Warn("settle failed",
			"pool", st.pool,
			"open_orders", st.openOrders,
			"result", attempt.Result,
			"err", err,
		)
	} else {
		s.logger.Info("funds settled",
			"pool", st.pool,
			"open_orders", st.openOrders,
			"market", st.market,
			"coin_free", st.funds.CoinFree,
			"pc_free", st.funds.PCFree,
			"coin_index", st.coinIndex,
			"pc_index", st.pcIndex,
			"signature", signature,
		)
	}
	s.metrics.SettleAttempts.WithLabelValues(poolLabel, attempt.Result).Inc()
	if err := s.journal.Record(ctx, attempt); err != nil {
		s.logger.Warn("journal write failed", "pool", st.pool, "err", err)
	}
	return attempt.Result
}

func (s *Service) sendSettle(ctx context.Context, st settlement) (solana.Signature, error) {
	settleIx, err := instruction.NewSettleFunds(
		s.cfg.ProgramID,
		instruction.SettleFunds{Seed: st.seed, PCIndex: st.pcIndex, CoinIndex: st.coinIndex},
		instruction.Trade{ExchangeProgram: st.exchange, Market: st.market, OpenOrders: st.openOrders},
		st.coinMint,
		st.pcMint,
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build settle_funds instruction: %w", err)
	}

	instructions := make([]solana.Instruction, 0, 3)
	if s.cfg.ComputeUnitLimit > 0 {
		cuLimitIx, err := computebudget.NewSetComputeUnitLimitInstruction(s.cfg.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return solana.Signature{}, fmt.Errorf("build compute unit limit instruction: %w", err)
		}
		instructions = append(instructions, cuLimitIx)
	}
	if s.cfg.ComputeUnitPriceMicroLamports > 0 {
		cuPriceIx, err := computebudget.NewSetComputeUnitPriceInstruction(s.cfg.ComputeUnitPriceMicroLamports).ValidateAndBuild()
		if err != nil {
			return solana.Signature{}, fmt.Errorf("build compute unit price instruction: %w", err)
		}
		instructions = append(instructions, cuPriceIx)
	}
	instructions = append(instructions, settleIx)
	return s.chain.Send(ctx, instructions)
}

// classify maps a send error to a journal result. Cluster errors only carry the custom
// program error code, in either the preflight or the status form.
func classify(err error) string {
	if err == nil {
		return resultSettled
	}
	if errors.Is(err, pool.ErrOverflow) {
		return resultOverflow
	}
	code := pool.ErrOverflow.ABCICode()
	msg := err.Error()
	if strings.Contains(msg, fmt.Sprintf("custom program error: 0x%x", code)) ||
		strings.Contains(msg, fmt.Sprintf("Custom:%d]", code)) {
		return resultOverflow
	}
	return resultFailed
}
