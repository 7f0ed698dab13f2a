package feedsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ScanDock/internal/broker/messages"
	"github.com/BearBump/ScanDock/internal/integrations/marketplace"
	"github.com/BearBump/ScanDock/internal/models"
	"github.com/BearBump/ScanDock/internal/trackkey"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	PatchOrderFromFeed(ctx context.Context, orderID uint64, p models.FeedPatch) (bool, error)
	FindOpenExceptionByLast8(ctx context.Context, last8 string) (*models.OrderException, error)
	MarkExceptionResolved(ctx context.Context, id uint64) error
}

type OrderMatcher interface {
	Match(ctx context.Context, raw string) (*models.Order, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Market — один маркетплейс: клиент фида и аккаунты продавца на нём.
type Market struct {
	Name     string
	Client   marketplace.Client
	Accounts []marketplace.Account
}

type Reconciler struct {
	repo    Repository
	matcher OrderMatcher
	rl      RateLimiter

	producer Producer
	topic    string

	markets []Market

	syncInterval       time.Duration
	lookbackDays       int
	limitPerPage       int
	maxPages           int
	rateLimitPerMinute int64

	triggerCh chan string

	startedAtUnixNano   int64
	lastRunUnixNano     atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalRuns           atomic.Int64
	totalScanned        atomic.Int64
	totalMatched        atomic.Int64
	totalUpdated        atomic.Int64
	totalUnmatched      atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, m OrderMatcher, rl RateLimiter, producer Producer, topic string, markets []Market) *Reconciler {
	return &Reconciler{
		repo: repo, matcher: m, rl: rl, producer: producer, topic: topic, markets: markets,
		syncInterval:       30 * time.Minute,
		lookbackDays:       7,
		limitPerPage:       50,
		maxPages:           10,
		rateLimitPerMinute: 60,
		triggerCh:          make(chan string, 4),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (r *Reconciler) WithSettings(interval time.Duration, lookbackDays, limitPerPage, maxPages int, rlPerMin int64) *Reconciler {
	if interval > 0 {
		r.syncInterval = interval
	}
	if lookbackDays > 0 {
		r.lookbackDays = lookbackDays
	}
	if limitPerPage > 0 {
		r.limitPerPage = limitPerPage
	}
	if maxPages > 0 {
		r.maxPages = maxPages
	}
	if rlPerMin > 0 {
		r.rateLimitPerMinute = rlPerMin
	}
	return r
}

// Params — пер-запусковые границы пула фида; нули берут дефолты реконсилятора.
type Params struct {
	LookbackDays int `json:"lookbackDays"`
	LimitPerPage int `json:"limitPerPage"`
	MaxPages     int `json:"maxPages"`
}

type Totals struct {
	Scanned   int `json:"scanned"`
	Matched   int `json:"matched"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Unmatched int `json:"unmatched"`
	Errors    int `json:"errors"`
}

func (t *Totals) add(o Totals) {
	t.Scanned += o.Scanned
	t.Matched += o.Matched
	t.Updated += o.Updated
	t.Unchanged += o.Unchanged
	t.Unmatched += o.Unmatched
	t.Errors += o.Errors
}

type AccountResult struct {
	Account string `json:"account"`
	Totals
	ErrorList []string `json:"errorList,omitempty"`
}

type RunResult struct {
	RunID       string          `json:"runId"`
	Marketplace string          `json:"marketplace"`
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  time.Time       `json:"finishedAt"`
	Totals      Totals          `json:"totals"`
	Results     []AccountResult `json:"results"`
}

// Trigger запрашивает немедленный прогон одного маркетплейса (best-effort).
func (r *Reconciler) Trigger(market string) {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- market:
	default:
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.syncInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.runAll(ctx)
		case name := <-r.triggerCh:
			if name == "" {
				r.runAll(ctx)
				continue
			}
			if _, err := r.RunMarketplace(ctx, name, Params{}); err != nil {
				r.noteError(err)
			}
		}
	}
}

func (r *Reconciler) runAll(ctx context.Context) {
	for _, m := range r.markets {
		if _, err := r.RunMarketplace(ctx, m.Name, Params{}); err != nil {
			r.noteError(err)
		}
	}
}

// RunMarketplace — один проход «pull → match → update-or-skip» по всем
// аккаунтам маркетплейса, аккаунты строго по очереди. Ошибка любого аккаунта
// (включая упавшую авторизацию) не трогает остальных. Фатально только
// отсутствие самого маркетплейса или аккаунтов — до начала работы.
func (r *Reconciler) RunMarketplace(ctx context.Context, name string, p Params) (RunResult, error) {
	var mkt *Market
	for i := range r.markets {
		if r.markets[i].Name == name {
			mkt = &r.markets[i]
			break
		}
	}
	if mkt == nil {
		return RunResult{}, errors.Errorf("unknown marketplace %q", name)
	}
	if len(mkt.Accounts) == 0 {
		return RunResult{}, errors.Errorf("no accounts configured for %s", name)
	}

	if p.LookbackDays <= 0 {
		p.LookbackDays = r.lookbackDays
	}
	if p.LimitPerPage <= 0 {
		p.LimitPerPage = r.limitPerPage
	}
	if p.MaxPages <= 0 {
		p.MaxPages = r.maxPages
	}

	now := time.Now().UTC()
	r.lastRunUnixNano.Store(now.UnixNano())
	r.totalRuns.Add(1)

	res := RunResult{
		RunID:       uuid.NewString(),
		Marketplace: name,
		StartedAt:   now,
	}
	since := now.Add(-time.Duration(p.LookbackDays) * 24 * time.Hour)

	for _, acct := range mkt.Accounts {
		ar := r.runAccount(ctx, mkt, acct, since, p)
		res.Totals.add(ar.Totals)
		res.Results = append(res.Results, ar)
	}
	res.FinishedAt = time.Now().UTC()

	r.totalScanned.Add(int64(res.Totals.Scanned))
	r.totalMatched.Add(int64(res.Totals.Matched))
	r.totalUpdated.Add(int64(res.Totals.Updated))
	r.totalUnmatched.Add(int64(res.Totals.Unmatched))
	r.totalErrors.Add(int64(res.Totals.Errors))

	r.publishCompleted(ctx, res)

	slog.Info("feed sync run finished",
		"marketplace", name, "run_id", res.RunID,
		"scanned", res.Totals.Scanned, "matched", res.Totals.Matched,
		"updated", res.Totals.Updated, "unmatched", res.Totals.Unmatched,
		"errors", res.Totals.Errors)
	return res, nil
}

func (r *Reconciler) runAccount(ctx context.Context, mkt *Market, acct marketplace.Account, since time.Time, p Params) AccountResult {
	ar := AccountResult{Account: acct.Name}

	if acct.Token == "" {
		ar.Errors++
		ar.ErrorList = append(ar.ErrorList, "missing token")
		return ar
	}

	seen := make(map[string]struct{})
	for page := 1; page <= p.MaxPages; page++ {
		r.throttle(ctx, mkt.Name, acct.Name)

		pg, err := mkt.Client.ListOrders(ctx, acct, since, page, p.LimitPerPage)
		if err != nil {
			// Ретраев нет: упавшая страница заканчивает пул этого аккаунта,
			// ошибка уходит в отчёт, соседние аккаунты не страдают.
			ar.Errors++
			ar.ErrorList = append(ar.ErrorList, fmt.Sprintf("page %d: %v", page, err))
			r.noteError(err)
			return ar
		}

		for _, fo := range pg.Orders {
			if _, ok := seen[fo.OrderID]; ok {
				continue
			}
			seen[fo.OrderID] = struct{}{}
			ar.Scanned++
			r.processFeedOrder(ctx, acct.Name, fo, &ar)
		}

		if !pg.HasMore {
			break
		}
	}
	return ar
}

// processFeedOrder решает судьбу одного заказа фида: каждый трек-кандидат
// прогоняется через matcher; хит — blank-only патч и закрытие исключения.
// Unmatched считается по заказам, не по посылкам: многоместный заказ без
// единого совпадения даёт ровно один unmatched (в очередь фид ничего не
// ставит — это прерогатива станций). Ошибка строки учитывается и не
// прерывает аккаунт.
func (r *Reconciler) processFeedOrder(ctx context.Context, account string, fo marketplace.FeedOrder, ar *AccountResult) {
	if len(fo.Trackings) == 0 {
		ar.Unmatched++
		return
	}

	matchedAny := false
	missedAny := false
	for _, raw := range fo.Trackings {
		o, err := r.matcher.Match(ctx, raw)
		if err != nil {
			ar.Errors++
			ar.ErrorList = append(ar.ErrorList, fmt.Sprintf("order %s: %v", fo.OrderID, err))
			continue
		}
		if o == nil {
			missedAny = true
			continue
		}
		matchedAny = true
		ar.Matched++

		changed, err := r.repo.PatchOrderFromFeed(ctx, o.ID, models.FeedPatch{
			ExternalOrderID: fo.OrderID,
			SKU:             fo.SKU,
			ItemID:          fo.ItemID,
			Title:           fo.Title,
			Condition:       fo.Condition,
			Quantity:        fo.Quantity,
			AccountSource:   account,
			OrderDate:       fo.OrderDate,
		})
		if err != nil {
			ar.Errors++
			ar.ErrorList = append(ar.ErrorList, fmt.Sprintf("order %s patch: %v", fo.OrderID, err))
			continue
		}
		if changed {
			ar.Updated++
		} else {
			ar.Unchanged++
		}

		r.resolveException(ctx, raw, ar, fo.OrderID)
	}
	if !matchedAny && missedAny {
		ar.Unmatched++
	}
}

func (r *Reconciler) resolveException(ctx context.Context, raw string, ar *AccountResult, orderID string) {
	last8 := trackkey.Last8(raw)
	if last8 == "" {
		return
	}
	e, err := r.repo.FindOpenExceptionByLast8(ctx, last8)
	if err != nil {
		ar.Errors++
		ar.ErrorList = append(ar.ErrorList, fmt.Sprintf("order %s exception lookup: %v", orderID, err))
		return
	}
	if e == nil {
		return
	}
	if err := r.repo.MarkExceptionResolved(ctx, e.ID); err != nil {
		ar.Errors++
		ar.ErrorList = append(ar.ErrorList, fmt.Sprintf("order %s exception resolve: %v", orderID, err))
	}
}

func (r *Reconciler) throttle(ctx context.Context, market, account string) {
	if r.rl == nil || r.rateLimitPerMinute <= 0 {
		return
	}
	key := fmt.Sprintf("rl:feed:%s:%s:%s", market, account, time.Now().UTC().Format("200601021504"))
	allowed, n, err := r.rl.Allow(ctx, key, r.rateLimitPerMinute, 70*time.Second)
	if err != nil {
		// Недоступный limiter не должен останавливать backfill.
		slog.Warn("feed rate limiter unavailable", "error", err.Error())
		return
	}
	if !allowed {
		slog.Warn("feed rate limit exceeded", "marketplace", market, "account", account, "count", n)
		time.Sleep(500 * time.Millisecond)
	}
}

func (r *Reconciler) publishCompleted(ctx context.Context, res RunResult) {
	if r.producer == nil || r.topic == "" {
		return
	}
	msg := messages.FeedSyncCompleted{
		RunID:       res.RunID,
		Marketplace: res.Marketplace,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
		Scanned:     res.Totals.Scanned,
		Matched:     res.Totals.Matched,
		Updated:     res.Totals.Updated,
		Unmatched:   res.Totals.Unmatched,
		Errors:      res.Totals.Errors,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		r.noteError(errors.Wrap(err, "marshal feed sync message"))
		return
	}
	if err := r.producer.Publish(ctx, r.topic, []byte(res.RunID), b); err != nil {
		// Сводка в kafka — best effort, сам прогон уже закоммичен в БД.
		r.noteError(errors.Wrap(err, "publish feed sync message"))
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalRuns      int64      `json:"totalRuns"`
	TotalScanned   int64      `json:"totalScanned"`
	TotalMatched   int64      `json:"totalMatched"`
	TotalUpdated   int64      `json:"totalUpdated"`
	TotalUnmatched int64      `json:"totalUnmatched"`
	TotalErrors    int64      `json:"totalErrors"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Reconciler) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalRuns:      r.totalRuns.Load(),
		TotalScanned:   r.totalScanned.Load(),
		TotalMatched:   r.totalMatched.Load(),
		TotalUpdated:   r.totalUpdated.Load(),
		TotalUnmatched: r.totalUnmatched.Load(),
		TotalErrors:    r.totalErrors.Load(),
	}
	if n := r.lastRunUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastRunAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Reconciler) noteError(err error) {
	slog.Error("feed sync", "error", err.Error())
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}
