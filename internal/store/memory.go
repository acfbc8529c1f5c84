package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/feral-file/launch-ledger/internal/store/schema"
)

// MemoryStore is an in-memory Store used by tests and local development.
// Transaction snapshots the whole state and restores it on error, giving
// the same all-or-nothing semantics as the database-backed store.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	groups         map[string]*schema.LaunchGroup
	currencies     map[string]*schema.GroupCurrency
	participations map[string]*schema.Participation
	allocations    map[string]*schema.UserAllocation
	deposits       map[string]*schema.GroupDeposit
	balances       map[string]*schema.WithdrawableBalance
	capabilities   map[string]struct{}
	flags          map[string]bool
	journal        []*schema.LedgerJournal
	nextID         int64
	nextCursor     int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		groups:         make(map[string]*schema.LaunchGroup),
		currencies:     make(map[string]*schema.GroupCurrency),
		participations: make(map[string]*schema.Participation),
		allocations:    make(map[string]*schema.UserAllocation),
		deposits:       make(map[string]*schema.GroupDeposit),
		balances:       make(map[string]*schema.WithdrawableBalance),
		capabilities:   make(map[string]struct{}),
		flags:          make(map[string]bool),
		nextID:         1,
		nextCursor:     1,
	}
}

func memKey(parts ...string) string {
	return strings.Join(parts, "|")
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.nextID = s.nextID
	c.nextCursor = s.nextCursor
	for k, v := range s.groups {
		g := *v
		g.Currencies = append([]schema.GroupCurrency(nil), v.Currencies...)
		c.groups[k] = &g
	}
	for k, v := range s.currencies {
		cc := *v
		c.currencies[k] = &cc
	}
	for k, v := range s.participations {
		p := *v
		c.participations[k] = &p
	}
	for k, v := range s.allocations {
		a := *v
		c.allocations[k] = &a
	}
	for k, v := range s.deposits {
		d := *v
		c.deposits[k] = &d
	}
	for k, v := range s.balances {
		b := *v
		c.balances[k] = &b
	}
	for k := range s.capabilities {
		c.capabilities[k] = struct{}{}
	}
	for k, v := range s.flags {
		c.flags[k] = v
	}
	c.journal = make([]*schema.LedgerJournal, len(s.journal))
	for i, v := range s.journal {
		e := *v
		e.Meta = append([]byte(nil), v.Meta...)
		c.journal[i] = &e
	}
	return c
}

// Transaction executes fn against the state, restoring the pre-call
// snapshot if fn returns an error
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memTx{state: s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) CreateLaunchGroup(ctx context.Context, group *schema.LaunchGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.createLaunchGroup(group)
}

func (s *MemoryStore) GetLaunchGroup(ctx context.Context, groupID string) (*schema.LaunchGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getLaunchGroup(groupID)
}

func (s *MemoryStore) ListLaunchGroups(ctx context.Context) ([]*schema.LaunchGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listLaunchGroups()
}

func (s *MemoryStore) SaveLaunchGroup(ctx context.Context, group *schema.LaunchGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.saveLaunchGroup(group)
}

func (s *MemoryStore) UpsertGroupCurrency(ctx context.Context, cc *schema.GroupCurrency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.upsertGroupCurrency(cc)
}

func (s *MemoryStore) GetGroupCurrency(ctx context.Context, groupID, currency string) (*schema.GroupCurrency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getGroupCurrency(groupID, currency)
}

func (s *MemoryStore) ListGroupCurrencies(ctx context.Context, groupID string) ([]*schema.GroupCurrency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listGroupCurrencies(groupID)
}

func (s *MemoryStore) CreateParticipation(ctx context.Context, p *schema.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.createParticipation(p)
}

func (s *MemoryStore) GetParticipation(ctx context.Context, participationID string) (*schema.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getParticipation(participationID)
}

func (s *MemoryStore) SaveParticipation(ctx context.Context, p *schema.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.saveParticipation(p)
}

func (s *MemoryStore) ListGroupParticipations(ctx context.Context, groupID, userID string, limit, offset int) ([]*schema.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listGroupParticipations(groupID, userID, limit, offset)
}

func (s *MemoryStore) ListRefundableParticipations(ctx context.Context, groupID string, limit int) ([]*schema.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listRefundableParticipations(groupID, limit)
}

func (s *MemoryStore) GetUserAllocation(ctx context.Context, groupID, userID string) (*schema.UserAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getUserAllocation(groupID, userID)
}

func (s *MemoryStore) SaveUserAllocation(ctx context.Context, a *schema.UserAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.saveUserAllocation(a)
}

func (s *MemoryStore) DeleteUserAllocation(ctx context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.deleteUserAllocation(groupID, userID)
}

func (s *MemoryStore) CountGroupParticipants(ctx context.Context, groupID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.countGroupParticipants(groupID)
}

func (s *MemoryStore) GetGroupDeposit(ctx context.Context, groupID, currency string) (*schema.GroupDeposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getGroupDeposit(groupID, currency)
}

func (s *MemoryStore) SaveGroupDeposit(ctx context.Context, d *schema.GroupDeposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.saveGroupDeposit(d)
}

func (s *MemoryStore) GetWithdrawableBalance(ctx context.Context, currency string) (*schema.WithdrawableBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getWithdrawableBalance(currency)
}

func (s *MemoryStore) SaveWithdrawableBalance(ctx context.Context, b *schema.WithdrawableBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.saveWithdrawableBalance(b)
}

func (s *MemoryStore) ListWithdrawableBalances(ctx context.Context) ([]*schema.WithdrawableBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listWithdrawableBalances()
}

func (s *MemoryStore) HasCapability(ctx context.Context, identity, role string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.hasCapability(identity, role)
}

func (s *MemoryStore) GrantCapability(ctx context.Context, identity, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.grantCapability(identity, role)
}

func (s *MemoryStore) RevokeCapability(ctx context.Context, identity, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.revokeCapability(identity, role)
}

func (s *MemoryStore) GetFlag(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getFlag(key)
}

func (s *MemoryStore) SetFlag(ctx context.Context, key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.setFlag(key, value)
}

func (s *MemoryStore) AppendJournal(ctx context.Context, entry *schema.LedgerJournal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.appendJournal(entry)
}

func (s *MemoryStore) ListJournal(ctx context.Context, groupID string, limit, offset int) ([]*schema.LedgerJournal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listJournal(groupID, limit, offset)
}

// memTx is the transactional view handed to Transaction callbacks. The
// enclosing MemoryStore holds the lock for the duration of the callback.
type memTx struct {
	state *memState
}

func (t *memTx) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memTx) CreateLaunchGroup(ctx context.Context, group *schema.LaunchGroup) error {
	return t.state.createLaunchGroup(group)
}

func (t *memTx) GetLaunchGroup(ctx context.Context, groupID string) (*schema.LaunchGroup, error) {
	return t.state.getLaunchGroup(groupID)
}

func (t *memTx) ListLaunchGroups(ctx context.Context) ([]*schema.LaunchGroup, error) {
	return t.state.listLaunchGroups()
}

func (t *memTx) SaveLaunchGroup(ctx context.Context, group *schema.LaunchGroup) error {
	return t.state.saveLaunchGroup(group)
}

func (t *memTx) UpsertGroupCurrency(ctx context.Context, cc *schema.GroupCurrency) error {
	return t.state.upsertGroupCurrency(cc)
}

func (t *memTx) GetGroupCurrency(ctx context.Context, groupID, currency string) (*schema.GroupCurrency, error) {
	return t.state.getGroupCurrency(groupID, currency)
}

func (t *memTx) ListGroupCurrencies(ctx context.Context, groupID string) ([]*schema.GroupCurrency, error) {
	return t.state.listGroupCurrencies(groupID)
}

func (t *memTx) CreateParticipation(ctx context.Context, p *schema.Participation) error {
	return t.state.createParticipation(p)
}

func (t *memTx) GetParticipation(ctx context.Context, participationID string) (*schema.Participation, error) {
	return t.state.getParticipation(participationID)
}

func (t *memTx) SaveParticipation(ctx context.Context, p *schema.Participation) error {
	return t.state.saveParticipation(p)
}

func (t *memTx) ListGroupParticipations(ctx context.Context, groupID, userID string, limit, offset int) ([]*schema.Participation, error) {
	return t.state.listGroupParticipations(groupID, userID, limit, offset)
}

func (t *memTx) ListRefundableParticipations(ctx context.Context, groupID string, limit int) ([]*schema.Participation, error) {
	return t.state.listRefundableParticipations(groupID, limit)
}

func (t *memTx) GetUserAllocation(ctx context.Context, groupID, userID string) (*schema.UserAllocation, error) {
	return t.state.getUserAllocation(groupID, userID)
}

func (t *memTx) SaveUserAllocation(ctx context.Context, a *schema.UserAllocation) error {
	return t.state.saveUserAllocation(a)
}

func (t *memTx) DeleteUserAllocation(ctx context.Context, groupID, userID string) error {
	return t.state.deleteUserAllocation(groupID, userID)
}

func (t *memTx) CountGroupParticipants(ctx context.Context, groupID string) (int64, error) {
	return t.state.countGroupParticipants(groupID)
}

func (t *memTx) GetGroupDeposit(ctx context.Context, groupID, currency string) (*schema.GroupDeposit, error) {
	return t.state.getGroupDeposit(groupID, currency)
}

func (t *memTx) SaveGroupDeposit(ctx context.Context, d *schema.GroupDeposit) error {
	return t.state.saveGroupDeposit(d)
}

func (t *memTx) GetWithdrawableBalance(ctx context.Context, currency string) (*schema.WithdrawableBalance, error) {
	return t.state.getWithdrawableBalance(currency)
}

func (t *memTx) SaveWithdrawableBalance(ctx context.Context, b *schema.WithdrawableBalance) error {
	return t.state.saveWithdrawableBalance(b)
}

func (t *memTx) ListWithdrawableBalances(ctx context.Context) ([]*schema.WithdrawableBalance, error) {
	return t.state.listWithdrawableBalances()
}

func (t *memTx) HasCapability(ctx context.Context, identity, role string) (bool, error) {
	return t.state.hasCapability(identity, role)
}

func (t *memTx) GrantCapability(ctx context.Context, identity, role string) error {
	return t.state.grantCapability(identity, role)
}

func (t *memTx) RevokeCapability(ctx context.Context, identity, role string) error {
	return t.state.revokeCapability(identity, role)
}

func (t *memTx) GetFlag(ctx context.Context, key string) (bool, error) {
	return t.state.getFlag(key)
}

func (t *memTx) SetFlag(ctx context.Context, key string, value bool) error {
	return t.state.setFlag(key, value)
}

func (t *memTx) AppendJournal(ctx context.Context, entry *schema.LedgerJournal) error {
	return t.state.appendJournal(entry)
}

func (t *memTx) ListJournal(ctx context.Context, groupID string, limit, offset int) ([]*schema.LedgerJournal, error) {
	return t.state.listJournal(groupID, limit, offset)
}

func (s *memState) assignID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *memState) createLaunchGroup(group *schema.LaunchGroup) error {
	if _, ok := s.groups[group.GroupID]; ok {
		return ErrDuplicateRecord
	}
	group.ID = s.assignID()
	now := time.Now()
	group.CreatedAt = now
	group.UpdatedAt = now
	g := *group
	s.groups[group.GroupID] = &g
	return nil
}

func (s *memState) getLaunchGroup(groupID string) (*schema.LaunchGroup, error) {
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	out := *g
	return &out, nil
}

func (s *memState) listLaunchGroups() ([]*schema.LaunchGroup, error) {
	out := make([]*schema.LaunchGroup, 0, len(s.groups))
	for _, g := range s.groups {
		c := *g
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) saveLaunchGroup(group *schema.LaunchGroup) error {
	group.UpdatedAt = time.Now()
	g := *group
	s.groups[group.GroupID] = &g
	return nil
}

func (s *memState) upsertGroupCurrency(cc *schema.GroupCurrency) error {
	key := memKey(cc.GroupID, cc.Currency)
	now := time.Now()
	if existing, ok := s.currencies[key]; ok {
		cc.ID = existing.ID
		cc.CreatedAt = existing.CreatedAt
	} else {
		cc.ID = s.assignID()
		cc.CreatedAt = now
	}
	cc.UpdatedAt = now
	c := *cc
	s.currencies[key] = &c
	return nil
}

func (s *memState) getGroupCurrency(groupID, currency string) (*schema.GroupCurrency, error) {
	cc, ok := s.currencies[memKey(groupID, currency)]
	if !ok {
		return nil, nil
	}
	out := *cc
	return &out, nil
}

func (s *memState) listGroupCurrencies(groupID string) ([]*schema.GroupCurrency, error) {
	var out []*schema.GroupCurrency
	for _, cc := range s.currencies {
		if cc.GroupID == groupID {
			c := *cc
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) createParticipation(p *schema.Participation) error {
	if _, ok := s.participations[p.ParticipationID]; ok {
		return ErrDuplicateRecord
	}
	p.ID = s.assignID()
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	c := *p
	s.participations[p.ParticipationID] = &c
	return nil
}

func (s *memState) getParticipation(participationID string) (*schema.Participation, error) {
	p, ok := s.participations[participationID]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (s *memState) saveParticipation(p *schema.Participation) error {
	p.UpdatedAt = time.Now()
	c := *p
	s.participations[p.ParticipationID] = &c
	return nil
}

func (s *memState) listGroupParticipations(groupID, userID string, limit, offset int) ([]*schema.Participation, error) {
	var all []*schema.Participation
	for _, p := range s.participations {
		if p.GroupID != groupID {
			continue
		}
		if userID != "" && p.UserID != userID {
			continue
		}
		c := *p
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset > 0 {
		if offset >= len(all) {
			return nil, nil
		}
		all = all[offset:]
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *memState) listRefundableParticipations(groupID string, limit int) ([]*schema.Participation, error) {
	var out []*schema.Participation
	for _, p := range s.participations {
		if p.GroupID != groupID || p.Finalized {
			continue
		}
		if isZeroAmount(p.TokenAmount) || isZeroAmount(p.CurrencyAmount) {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func isZeroAmount(v string) bool {
	if v == "" {
		return true
	}
	for _, r := range v {
		if r != '0' {
			return false
		}
	}
	return true
}

func (s *memState) getUserAllocation(groupID, userID string) (*schema.UserAllocation, error) {
	a, ok := s.allocations[memKey(groupID, userID)]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

func (s *memState) saveUserAllocation(a *schema.UserAllocation) error {
	key := memKey(a.GroupID, a.UserID)
	now := time.Now()
	if existing, ok := s.allocations[key]; ok {
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
	} else if a.ID == 0 {
		a.ID = s.assignID()
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	c := *a
	s.allocations[key] = &c
	return nil
}

func (s *memState) deleteUserAllocation(groupID, userID string) error {
	delete(s.allocations, memKey(groupID, userID))
	return nil
}

func (s *memState) countGroupParticipants(groupID string) (int64, error) {
	var count int64
	for _, a := range s.allocations {
		if a.GroupID == groupID {
			count++
		}
	}
	return count, nil
}

func (s *memState) getGroupDeposit(groupID, currency string) (*schema.GroupDeposit, error) {
	d, ok := s.deposits[memKey(groupID, currency)]
	if !ok {
		return nil, nil
	}
	out := *d
	return &out, nil
}

func (s *memState) saveGroupDeposit(d *schema.GroupDeposit) error {
	key := memKey(d.GroupID, d.Currency)
	now := time.Now()
	if existing, ok := s.deposits[key]; ok {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
	} else if d.ID == 0 {
		d.ID = s.assignID()
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	c := *d
	s.deposits[key] = &c
	return nil
}

func (s *memState) getWithdrawableBalance(currency string) (*schema.WithdrawableBalance, error) {
	b, ok := s.balances[currency]
	if !ok {
		return nil, nil
	}
	out := *b
	return &out, nil
}

func (s *memState) saveWithdrawableBalance(b *schema.WithdrawableBalance) error {
	now := time.Now()
	if existing, ok := s.balances[b.Currency]; ok {
		b.ID = existing.ID
		b.CreatedAt = existing.CreatedAt
	} else if b.ID == 0 {
		b.ID = s.assignID()
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	c := *b
	s.balances[b.Currency] = &c
	return nil
}

func (s *memState) listWithdrawableBalances() ([]*schema.WithdrawableBalance, error) {
	out := make([]*schema.WithdrawableBalance, 0, len(s.balances))
	for _, b := range s.balances {
		c := *b
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) hasCapability(identity, role string) (bool, error) {
	_, ok := s.capabilities[memKey(identity, role)]
	return ok, nil
}

func (s *memState) grantCapability(identity, role string) error {
	s.capabilities[memKey(identity, role)] = struct{}{}
	return nil
}

func (s *memState) revokeCapability(identity, role string) error {
	delete(s.capabilities, memKey(identity, role))
	return nil
}

func (s *memState) getFlag(key string) (bool, error) {
	return s.flags[key], nil
}

func (s *memState) setFlag(key string, value bool) error {
	s.flags[key] = value
	return nil
}

func (s *memState) appendJournal(entry *schema.LedgerJournal) error {
	entry.Cursor = s.nextCursor
	s.nextCursor++
	entry.CreatedAt = time.Now()
	c := *entry
	c.Meta = append([]byte(nil), entry.Meta...)
	s.journal = append(s.journal, &c)
	return nil
}

func (s *memState) listJournal(groupID string, limit, offset int) ([]*schema.LedgerJournal, error) {
	var all []*schema.LedgerJournal
	for _, e := range s.journal {
		if e.GroupID != groupID {
			continue
		}
		c := *e
		c.Meta = append([]byte(nil), e.Meta...)
		all = append(all, &c)
	}
	if offset > 0 {
		if offset >= len(all) {
			return nil, nil
		}
		all = all[offset:]
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
