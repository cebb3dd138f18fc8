// Package entity implements the entity data manager: paginated, filtered and
// searched list fetching plus dashboard KPI data for one scope, and the
// create/update/archive mutations.
package entity

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/apiclient"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// API is the subset of the school API client the manager needs.
type API interface {
	GetJSON(ctx context.Context, path string, query url.Values) (apiclient.Envelope, error)
	PostJSON(ctx context.Context, path string, body any) (apiclient.Envelope, error)
	PutJSON(ctx context.Context, path string, body any) (apiclient.Envelope, error)
	Delete(ctx context.Context, path string) (apiclient.Envelope, error)
}

// Origin identifies what changed the query. Only free-text search input is
// debounced.
type Origin int

const (
	// OriginQuery covers filter, page and rows-per-page changes.
	OriginQuery Origin = iota
	// OriginSearch is a change of the free-text search.
	OriginSearch
	// OriginScope is a switch to another campus.
	OriginScope
)

// State is a snapshot of the manager.
type State struct {
	Entities   []model.Entity `json:"entities"`
	Total      int            `json:"total"`
	Loading    bool           `json:"loading"`
	KPIs       map[string]any `json:"kpis,omitempty"`
	KPILoading bool           `json:"kpi_loading"`
	Query      model.Query    `json:"query"`
	Scope      string         `json:"scope"`
	// Seq orders delivered snapshots; a subscriber may see them out of order.
	Seq uint64 `json:"-"`
}

// Options configures a Manager.
type Options struct {
	// Endpoint is the resource path segment, e.g. "students".
	Endpoint string
	// Entity is the singular display name used in messages.
	Entity         string
	ScopeKey       string
	ScopeRoot      string
	ScopePattern   string
	SearchDebounce time.Duration
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// Manager owns the list and KPI state of one page.
type Manager struct {
	api        API
	endpoint   string
	entity     string
	scopeKey   string
	scopeRoot  string
	scopeRE    *regexp.Regexp
	debounce   time.Duration
	logger     *zap.Logger
	metrics    *observability.Metrics
	debouncer  *Debouncer
	base       context.Context
	cancelBase context.CancelFunc

	mu         sync.Mutex
	state      State
	listGen    uint64
	kpiGen     uint64
	cancelList context.CancelFunc
	cancelKPI  context.CancelFunc
	subs       map[int]func(State)
	nextSub    int
	seq        uint64
	closed     bool
}

// NewManager creates a manager for one endpoint. The query starts at page 0
// with rowsPerPage rows.
func NewManager(api API, rowsPerPage int, opts Options) (*Manager, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("entity: endpoint is required")
	}
	endpoint := strings.Trim(opts.Endpoint, "/")

	scopeRE := regexp.MustCompile(model.DefaultScopePattern)
	if opts.ScopePattern != "" {
		re, err := regexp.Compile(opts.ScopePattern)
		if err != nil {
			return nil, fmt.Errorf("entity: scope pattern: %w", err)
		}
		scopeRE = re
	}
	if opts.ScopeKey == "" {
		opts.ScopeKey = "campus"
	}
	if opts.ScopeRoot == "" {
		opts.ScopeRoot = opts.ScopeKey
	}
	if opts.Entity == "" {
		opts.Entity = "entity"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if rowsPerPage <= 0 {
		rowsPerPage = 10
	}

	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		api:        api,
		endpoint:   endpoint,
		entity:     opts.Entity,
		scopeKey:   opts.ScopeKey,
		scopeRoot:  strings.Trim(opts.ScopeRoot, "/"),
		scopeRE:    scopeRE,
		debounce:   opts.SearchDebounce,
		logger:     opts.Logger.With(zap.String("endpoint", endpoint)),
		metrics:    opts.Metrics,
		debouncer:  &Debouncer{},
		base:       base,
		cancelBase: cancel,
		state: State{
			Entities: []model.Entity{},
			Query:    model.Query{RowsPerPage: rowsPerPage},
		},
		subs: make(map[int]func(State)),
	}, nil
}

// Endpoint returns the resource path segment.
func (m *Manager) Endpoint() string { return m.endpoint }

// ValidScope reports whether id is a well-formed scope identifier.
func (m *Manager) ValidScope(id string) bool {
	return m.scopeRE.MatchString(id)
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	s := m.state
	s.Entities = append([]model.Entity(nil), m.state.Entities...)
	s.Query = m.state.Query.Clone()
	return s
}

// Subscribe registers fn to be called after every state change. The returned
// function removes the subscription.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// notify must be called without m.mu held.
func (m *Manager) notify() {
	m.mu.Lock()
	m.seq++
	snap := m.snapshotLocked()
	snap.Seq = m.seq
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// SetScope binds the manager to a scope without fetching.
func (m *Manager) SetScope(scope string) {
	m.mu.Lock()
	m.state.Scope = scope
	m.mu.Unlock()
}

// Load binds the manager to scope and fetches the list (with the current
// query) and the KPIs in parallel.
func (m *Manager) Load(ctx context.Context, scope string) {
	m.mu.Lock()
	m.state.Scope = scope
	query := m.state.Query.Clone()
	m.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		m.FetchList(ctx, scope, query)
		return nil
	})
	g.Go(func() error {
		m.FetchKPIs(ctx, scope)
		return nil
	})
	_ = g.Wait()
}

// Schedule is the single fetch trigger for query changes. Changes that come
// from non-empty search input wait for the debounce window and are superseded
// by later changes; every other change fetches without delay. The query is
// recorded and the state turns loading immediately.
func (m *Manager) Schedule(query model.Query, origin Origin) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.state.Query = query.Clone()
	m.state.Loading = m.ValidScope(m.state.Scope)
	scope := m.state.Scope
	m.mu.Unlock()
	m.notify()

	var delay time.Duration
	if origin == OriginSearch && query.Search != "" {
		delay = m.debounce
	}
	m.logger.Debug("list fetch scheduled",
		zap.Duration("delay", delay),
		zap.Int("page", query.Page),
	)
	m.debouncer.Trigger(delay, func() {
		m.FetchList(m.base, scope, query)
	})
}

// FetchList fetches one page of entities and replaces the list state. It
// never fails: an invalid scope leaves an empty non-loading state without
// calling the backend; any failure clears the list. A newer fetch aborts an
// older one still in flight, and the older response is discarded.
func (m *Manager) FetchList(ctx context.Context, scope string, query model.Query) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.cancelList != nil {
		m.cancelList()
		m.cancelList = nil
	}
	m.listGen++
	gen := m.listGen
	m.state.Scope = scope
	m.state.Query = query.Clone()

	if !m.ValidScope(scope) {
		m.state.Entities = []model.Entity{}
		m.state.Total = 0
		m.state.Loading = false
		m.mu.Unlock()
		m.metrics.RecordListFetch(m.endpoint, "skipped")
		m.notify()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.cancelList = cancel
	m.state.Loading = true
	m.mu.Unlock()
	m.notify()

	ctx, span := observability.StartSpan(ctx, "entity.fetch_list",
		observability.AttrEndpoint.String(m.endpoint),
		observability.AttrScope.String(scope),
	)
	env, err := m.api.GetJSON(ctx, "/"+m.endpoint, m.listQuery(scope, query))

	var entities []model.Entity
	if err == nil {
		err = env.DecodeData(&entities)
	}
	observability.EndSpanWithError(span, ignoreCancel(err))

	m.mu.Lock()
	if gen != m.listGen {
		m.mu.Unlock()
		m.logger.Debug("discarding superseded list response", zap.Uint64("generation", gen))
		m.metrics.RecordListFetch(m.endpoint, "stale")
		return
	}
	m.cancelList = nil
	m.state.Loading = false

	outcome := "success"
	switch {
	case apiclient.IsCancelled(err):
		m.state.Entities = []model.Entity{}
		m.state.Total = 0
		outcome = "cancelled"
		m.logger.Debug("list fetch cancelled")
	case err != nil:
		m.state.Entities = []model.Entity{}
		m.state.Total = 0
		outcome = "error"
		m.logger.Error("list fetch failed", zap.Error(err))
	default:
		if entities == nil {
			entities = []model.Entity{}
		}
		m.state.Entities = entities
		m.state.Total = env.Total()
		if env.Pagination == nil {
			m.state.Total = len(entities)
		}
	}
	m.mu.Unlock()

	m.metrics.RecordListFetch(m.endpoint, outcome)
	m.notify()
}

// listQuery builds page=<page+1>&limit&search&<scopeKey>=<scope>&<filters>.
func (m *Manager) listQuery(scope string, q model.Query) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page+1))
	v.Set("limit", strconv.Itoa(q.RowsPerPage))
	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set("search", s)
	}
	v.Set(m.scopeKey, scope)
	for k, val := range q.ActiveFilters() {
		if k == m.scopeKey || k == "page" || k == "limit" || k == "search" {
			continue
		}
		v.Set(k, val)
	}
	return v
}

// FetchKPIs replaces the KPI snapshot with the scope dashboard data, or
// resets it on failure. It is independent of the list query.
func (m *Manager) FetchKPIs(ctx context.Context, scope string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.cancelKPI != nil {
		m.cancelKPI()
		m.cancelKPI = nil
	}
	m.kpiGen++
	gen := m.kpiGen

	if !m.ValidScope(scope) {
		m.state.KPIs = nil
		m.state.KPILoading = false
		m.mu.Unlock()
		m.metrics.RecordKPIFetch(m.endpoint, "skipped")
		m.notify()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.cancelKPI = cancel
	m.state.KPILoading = true
	m.mu.Unlock()
	m.notify()

	ctx, span := observability.StartSpan(ctx, "entity.fetch_kpis",
		observability.AttrEndpoint.String(m.endpoint),
		observability.AttrScope.String(scope),
	)
	path := "/" + m.scopeRoot + "/" + url.PathEscape(scope) + "/dashboard"
	env, err := m.api.GetJSON(ctx, path, nil)

	var data map[string]any
	if err == nil {
		err = env.DecodeData(&data)
	}
	observability.EndSpanWithError(span, ignoreCancel(err))

	m.mu.Lock()
	if gen != m.kpiGen {
		m.mu.Unlock()
		m.metrics.RecordKPIFetch(m.endpoint, "stale")
		return
	}
	m.cancelKPI = nil
	m.state.KPILoading = false

	outcome := "success"
	switch {
	case apiclient.IsCancelled(err):
		m.state.KPIs = nil
		outcome = "cancelled"
		m.logger.Debug("kpi fetch cancelled")
	case err != nil:
		m.state.KPIs = nil
		outcome = "error"
		m.logger.Error("kpi fetch failed", zap.Error(err))
	default:
		m.state.KPIs = data
	}
	m.mu.Unlock()

	m.metrics.RecordKPIFetch(m.endpoint, outcome)
	m.notify()
}

// Invalidate refetches the given targets for the current scope and query,
// in parallel, and waits for them.
func (m *Manager) Invalidate(ctx context.Context, targets ...model.Target) {
	m.mu.Lock()
	scope := m.state.Scope
	query := m.state.Query.Clone()
	m.mu.Unlock()

	var list, kpis bool
	for _, t := range targets {
		switch t {
		case model.TargetList:
			list = true
		case model.TargetKPIs:
			kpis = true
		}
	}

	var g errgroup.Group
	if list {
		g.Go(func() error {
			m.FetchList(ctx, scope, query)
			return nil
		})
	}
	if kpis {
		g.Go(func() error {
			m.FetchKPIs(ctx, scope)
			return nil
		})
	}
	_ = g.Wait()
}

// Create posts a new entity. On success the result carries the created
// entity and asks for list and KPI refetches.
func (m *Manager) Create(ctx context.Context, payload map[string]any) model.Result {
	env, err := m.api.PostJSON(ctx, "/"+m.endpoint, payload)
	return m.mutationResult(ctx, "create", env, err,
		fmt.Sprintf("%s created successfully", capitalize(m.entity)),
		fmt.Sprintf("Failed to create %s", m.entity),
		model.TargetList, model.TargetKPIs)
}

// Update sends a partial update for id. On success only the list is
// invalidated.
func (m *Manager) Update(ctx context.Context, id string, payload map[string]any) model.Result {
	if id == "" {
		return model.Failed(model.NewValidationError("An id is required"), "")
	}
	env, err := m.api.PutJSON(ctx, "/"+m.endpoint+"/"+url.PathEscape(id), payload)
	return m.mutationResult(ctx, "update", env, err,
		fmt.Sprintf("%s updated successfully", capitalize(m.entity)),
		fmt.Sprintf("Failed to update %s", m.entity),
		model.TargetList)
}

// Archive soft-deletes id. On success list and KPIs are invalidated.
func (m *Manager) Archive(ctx context.Context, id string) model.Result {
	if id == "" {
		return model.Failed(model.NewValidationError("An id is required"), "")
	}
	env, err := m.api.Delete(ctx, "/"+m.endpoint+"/"+url.PathEscape(id))
	return m.mutationResult(ctx, "archive", env, err,
		fmt.Sprintf("%s archived successfully", capitalize(m.entity)),
		fmt.Sprintf("Failed to archive %s", m.entity),
		model.TargetList, model.TargetKPIs)
}

func (m *Manager) mutationResult(ctx context.Context, op string, env apiclient.Envelope, err error, okMsg, failMsg string, invalidate ...model.Target) model.Result {
	logger := observability.RequestLogger(ctx, m.logger)
	if err != nil {
		m.metrics.RecordMutation(m.endpoint, op, false)
		if apiclient.IsCancelled(err) {
			logger.Debug("mutation cancelled", zap.String("operation", op))
		} else {
			logger.Warn("mutation failed", zap.String("operation", op), zap.Error(err))
		}
		return model.Failed(err, failMsg)
	}

	var created model.Entity
	if decodeErr := env.DecodeData(&created); decodeErr != nil {
		logger.Debug("mutation response carried non-entity data", zap.Error(decodeErr))
		created = nil
	}
	m.metrics.RecordMutation(m.endpoint, op, true)

	msg := env.Message
	if msg == "" {
		msg = okMsg
	}
	var data any
	if created != nil {
		data = created
	}
	return model.Succeeded(msg, data, invalidate...)
}

// Close aborts outstanding fetches and stops the debouncer. The manager
// ignores further fetch requests.
func (m *Manager) Close() {
	m.debouncer.Stop()
	m.mu.Lock()
	m.closed = true
	if m.cancelList != nil {
		m.cancelList()
	}
	if m.cancelKPI != nil {
		m.cancelKPI()
	}
	// Responses still in flight are treated as stale.
	m.listGen++
	m.kpiGen++
	m.state.Loading = false
	m.state.KPILoading = false
	m.mu.Unlock()
	m.cancelBase()
}

func ignoreCancel(err error) error {
	if apiclient.IsCancelled(err) {
		return nil
	}
	return err
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
