// Package ledgertest provides an in-memory node that hosts one deployment of
// the coinflip contract. Transactions are built, signed and executed the same
// way as against a fullnode, so services can be tested end to end.
package ledgertest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"coinflip-relay/internal/contract"
	"coinflip-relay/internal/models"
	"coinflip-relay/internal/sui"
)

const (
	CoinObjectType = "0x2::coin::Coin<" + sui.SuiCoinType + ">"

	MethodGetObject   = "sui_getObject"
	MethodGetBalance  = "suix_getBalance"
	MethodGetCoins    = "suix_getCoins"
	MethodMoveCall    = "unsafe_moveCall"
	MethodPaySui      = "unsafe_paySui"
	MethodDryRun      = "sui_dryRunTransactionBlock"
	MethodExecute     = "sui_executeTransactionBlock"
	MethodQueryBlocks = "suix_queryTransactionBlocks"
)

const (
	kindMoveCall = "moveCall"
	kindPaySui   = "paySui"
)

// txData is the payload behind the base64 transaction bytes handed out by
// MoveCall and PaySui.
type txData struct {
	Kind       string            `json:"kind"`
	Nonce      int               `json:"nonce"`
	Sender     string            `json:"sender"`
	Package    string            `json:"package,omitempty"`
	Module     string            `json:"module,omitempty"`
	Function   string            `json:"function,omitempty"`
	Arguments  []json.RawMessage `json:"arguments,omitempty"`
	InputCoins []string          `json:"inputCoins,omitempty"`
	Recipients []string          `json:"recipients,omitempty"`
	Amounts    []uint64          `json:"amounts,omitempty"`
	GasBudget  uint64            `json:"gasBudget"`
}

type matchEntry struct {
	match   *models.Match
	version uint64
}

type coin struct {
	owner   string
	balance uint64
	version uint64
}

type record struct {
	sender string
	tx     txData
	resp   sui.TransactionResponse
}

type abort struct {
	code   int
	reason string
}

func (a *abort) Error() string {
	return fmt.Sprintf("MoveAbort(%d): %s", a.code, a.reason)
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	contract *contract.Contract

	matches map[string]*matchEntry
	coins   map[string]*coin
	history []record
	calls   map[string]int
	seq     int

	conflicts    int
	failures     map[string]error
	executeDelay time.Duration
}

func New(packageID string) *Ledger {
	return &Ledger{
		contract: contract.New(packageID, contract.DefaultModule),
		matches:  make(map[string]*matchEntry),
		coins:    make(map[string]*coin),
		calls:    make(map[string]int),
		failures: make(map[string]error),
	}
}

func (l *Ledger) Contract() *contract.Contract {
	return l.contract
}

func (l *Ledger) nextID() string {
	l.seq++
	return fmt.Sprintf("0x%064x", l.seq)
}

// Fund mints a coin of the given value for owner and returns its id.
func (l *Ledger) Fund(owner string, mist uint64) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID()
	l.coins[id] = &coin{owner: sui.NormalizeAddress(owner), balance: mist, version: 1}
	return id
}

// PutMatch stores a match object directly and returns its id.
func (l *Ledger) PutMatch(m *models.Match) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := m.Clone()
	if c.ID == "" {
		c.ID = l.nextID()
	}
	l.matches[c.ID] = &matchEntry{match: c, version: 1}
	return c.ID
}

// Match returns a copy of the stored match, or nil.
func (l *Ledger) Match(id string) *models.Match {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.matches[id]
	if !ok {
		return nil
	}
	m := e.match.Clone()
	m.Version = e.version
	return m
}

func (l *Ledger) Balance(owner string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(sui.NormalizeAddress(owner))
}

func (l *Ledger) balance(owner string) uint64 {
	var total uint64
	for _, c := range l.coins {
		if c.owner == owner {
			total += c.balance
		}
	}
	return total
}

func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

// InjectVersionConflicts makes the next n contract calls fail the way a node
// rejects a transaction whose shared object was consumed by another one.
// Coin transfers are not affected.
func (l *Ledger) InjectVersionConflicts(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conflicts = n
}

// FailNext makes the next call to method return err.
func (l *Ledger) FailNext(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[method] = err
}

func (l *Ledger) SetExecuteDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.executeDelay = d
}

func (l *Ledger) begin(method string) error {
	l.calls[method]++
	if err, ok := l.failures[method]; ok {
		delete(l.failures, method)
		return err
	}
	return nil
}

func (l *Ledger) GetObject(_ context.Context, id string) (*sui.ObjectData, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodGetObject); err != nil {
		return nil, err
	}

	if e, ok := l.matches[id]; ok {
		fields := contract.FieldsFromMatch(e.match)
		fields.ID = json.RawMessage(fmt.Sprintf(`{"id":%q}`, id))
		raw, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		return &sui.ObjectData{
			ObjectID: id,
			Version:  sui.U64(e.version),
			Digest:   "obj-" + strconv.FormatUint(e.version, 10),
			Type:     l.contract.MatchType(),
			Content: &sui.MoveContent{
				DataType: "moveObject",
				Type:     l.contract.MatchType(),
				Fields:   raw,
			},
		}, nil
	}

	if c, ok := l.coins[id]; ok {
		raw, _ := json.Marshal(map[string]any{"balance": sui.U64(c.balance)})
		return &sui.ObjectData{
			ObjectID: id,
			Version:  sui.U64(c.version),
			Type:     CoinObjectType,
			Content:  &sui.MoveContent{DataType: "moveObject", Type: CoinObjectType, Fields: raw},
		}, nil
	}

	return nil, fmt.Errorf("%w: %s (notExists)", sui.ErrObjectNotFound, id)
}

func (l *Ledger) GetBalance(_ context.Context, owner, coinType string) (*sui.Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodGetBalance); err != nil {
		return nil, err
	}
	if coinType == "" {
		coinType = sui.SuiCoinType
	}

	owner = sui.NormalizeAddress(owner)
	count := 0
	for _, c := range l.coins {
		if c.owner == owner {
			count++
		}
	}
	return &sui.Balance{CoinType: coinType, CoinObjectCount: count, TotalBalance: sui.U64(l.balance(owner))}, nil
}

func (l *Ledger) GetCoins(_ context.Context, owner, coinType string, cursor *string, limit int) (*sui.CoinPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodGetCoins); err != nil {
		return nil, err
	}
	if coinType == "" {
		coinType = sui.SuiCoinType
	}

	owner = sui.NormalizeAddress(owner)
	var ids []string
	for id, c := range l.coins {
		if c.owner == owner && (cursor == nil || id > *cursor) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := &sui.CoinPage{}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
		page.HasNextPage = true
		last := ids[len(ids)-1]
		page.NextCursor = &last
	}
	for _, id := range ids {
		c := l.coins[id]
		page.Data = append(page.Data, sui.Coin{
			CoinType:     coinType,
			CoinObjectID: id,
			Version:      sui.U64(c.version),
			Balance:      sui.U64(c.balance),
		})
	}
	return page, nil
}

func (l *Ledger) MoveCall(_ context.Context, req sui.MoveCallRequest) (*sui.TransactionBytes, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodMoveCall); err != nil {
		return nil, err
	}
	if req.PackageObjectID != l.contract.PackageID || req.Module != l.contract.Module {
		return nil, &sui.RPCError{Method: MethodMoveCall, Code: -32602, Message: fmt.Sprintf("package %s not found", req.PackageObjectID)}
	}

	args := make([]json.RawMessage, len(req.Arguments))
	for i, a := range req.Arguments {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, &sui.RPCError{Method: MethodMoveCall, Code: -32602, Message: err.Error()}
		}
		args[i] = raw
	}

	return l.encode(txData{
		Kind:      kindMoveCall,
		Sender:    sui.NormalizeAddress(req.Signer),
		Package:   req.PackageObjectID,
		Module:    req.Module,
		Function:  req.Function,
		Arguments: args,
		GasBudget: req.GasBudget,
	})
}

func (l *Ledger) PaySui(_ context.Context, req sui.PaySuiRequest) (*sui.TransactionBytes, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodPaySui); err != nil {
		return nil, err
	}
	if len(req.InputCoins) == 0 || len(req.Recipients) != len(req.Amounts) {
		return nil, &sui.RPCError{Method: MethodPaySui, Code: -32602, Message: "invalid pay request"}
	}

	return l.encode(txData{
		Kind:       kindPaySui,
		Sender:     sui.NormalizeAddress(req.Signer),
		InputCoins: req.InputCoins,
		Recipients: req.Recipients,
		Amounts:    req.Amounts,
		GasBudget:  req.GasBudget,
	})
}

func (l *Ledger) encode(tx txData) (*sui.TransactionBytes, error) {
	l.seq++
	tx.Nonce = l.seq

	raw, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	return &sui.TransactionBytes{TxBytes: base64.StdEncoding.EncodeToString(raw)}, nil
}

func decode(txBytes string) (txData, error) {
	var tx txData
	raw, err := base64.StdEncoding.DecodeString(txBytes)
	if err != nil {
		return tx, err
	}
	err = json.Unmarshal(raw, &tx)
	return tx, err
}

// DryRun applies the transaction to a scratch copy of the state.
func (l *Ledger) DryRun(_ context.Context, txBytes string) (*sui.DryRunResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodDryRun); err != nil {
		return nil, err
	}
	tx, err := decode(txBytes)
	if err != nil {
		return nil, &sui.RPCError{Method: MethodDryRun, Code: -32602, Message: "invalid transaction bytes"}
	}

	scratch := l.snapshot()
	changes, execErr := scratch.apply(tx)
	return &sui.DryRunResponse{Effects: effects(execErr), ObjectChanges: changes}, nil
}

func (l *Ledger) ExecuteTransaction(ctx context.Context, txBytes string, signatures []string) (*sui.TransactionResponse, error) {
	l.mu.Lock()
	delay := l.executeDelay
	l.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			l.mu.Lock()
			l.calls[MethodExecute]++
			l.mu.Unlock()
			return nil, fmt.Errorf("sui: %s: %w", MethodExecute, ctx.Err())
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodExecute); err != nil {
		return nil, err
	}

	tx, err := decode(txBytes)
	if err != nil {
		return nil, &sui.RPCError{Method: MethodExecute, Code: -32602, Message: "invalid transaction bytes"}
	}
	if len(signatures) == 0 {
		return nil, &sui.RPCError{Method: MethodExecute, Code: -32602, Message: "missing signature"}
	}
	signer, err := sui.VerifySignature(txBytes, signatures[0])
	if err != nil {
		return nil, &sui.RPCError{Method: MethodExecute, Code: -32602, Message: err.Error()}
	}
	if signer != tx.Sender {
		return nil, &sui.RPCError{Method: MethodExecute, Code: -32602,
			Message: fmt.Sprintf("signer %s does not match sender %s", signer, tx.Sender)}
	}

	if l.conflicts > 0 && tx.Kind == kindMoveCall {
		l.conflicts--
		return nil, &sui.RPCError{Method: MethodExecute, Code: -32002,
			Message: "Transaction execution failed due to issues with transaction inputs: ObjectVersionUnavailableForConsumption"}
	}

	changes, execErr := l.apply(tx)
	resp := sui.TransactionResponse{
		Digest:        fmt.Sprintf("tx%04d", tx.Nonce),
		Effects:       effects(execErr),
		ObjectChanges: changes,
	}
	ts := sui.U64(time.Now().UnixMilli())
	resp.TimestampMs = &ts

	l.history = append(l.history, record{sender: tx.Sender, tx: tx, resp: resp})
	return &resp, nil
}

func effects(execErr error) json.RawMessage {
	status := sui.ExecutionStatus{Status: sui.ExecutionStatusSuccess}
	if execErr != nil {
		status = sui.ExecutionStatus{Status: sui.ExecutionStatusFailure, Error: execErr.Error()}
	}
	raw, _ := json.Marshal(map[string]any{"status": status})
	return raw
}

func (l *Ledger) QueryTransactionBlocks(_ context.Context, query sui.TransactionQuery, cursor *string, limit int, descending bool) (*sui.TransactionPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodQueryBlocks); err != nil {
		return nil, err
	}

	var matched []record
	for _, r := range l.history {
		if matchesFilter(r, query.Filter) {
			matched = append(matched, r)
		}
	}
	if descending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	if cursor != nil {
		for i, r := range matched {
			if r.resp.Digest == *cursor {
				matched = matched[i+1:]
				break
			}
		}
	}

	page := &sui.TransactionPage{}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
		page.HasNextPage = true
	}
	for _, r := range matched {
		page.Data = append(page.Data, r.resp)
	}
	if len(matched) > 0 {
		last := matched[len(matched)-1].resp.Digest
		page.NextCursor = &last
	} else if cursor != nil {
		page.NextCursor = cursor
	}
	return page, nil
}

func matchesFilter(r record, f *sui.TransactionFilter) bool {
	if f == nil {
		return true
	}
	if f.FromAddress != "" && sui.NormalizeAddress(f.FromAddress) != r.sender {
		return false
	}
	if mf := f.MoveFunction; mf != nil {
		if r.tx.Kind != kindMoveCall || r.tx.Package != mf.Package {
			return false
		}
		if mf.Module != "" && r.tx.Module != mf.Module {
			return false
		}
		if mf.Function != "" && r.tx.Function != mf.Function {
			return false
		}
	}
	return true
}

// snapshot copies the object state for dry runs.
func (l *Ledger) snapshot() *Ledger {
	s := &Ledger{
		contract: l.contract,
		matches:  make(map[string]*matchEntry, len(l.matches)),
		coins:    make(map[string]*coin, len(l.coins)),
		seq:      l.seq,
	}
	for id, e := range l.matches {
		s.matches[id] = &matchEntry{match: e.match.Clone(), version: e.version}
	}
	for id, c := range l.coins {
		cc := *c
		s.coins[id] = &cc
	}
	return s
}

// apply executes tx against the state. A non-nil error is an execution
// failure: no state changes, reported through the effects status.
func (l *Ledger) apply(tx txData) ([]sui.ObjectChange, error) {
	switch tx.Kind {
	case kindPaySui:
		return l.applyPay(tx)
	case kindMoveCall:
		return l.applyMoveCall(tx)
	}
	return nil, &abort{code: 0, reason: "unknown transaction kind " + tx.Kind}
}

func (l *Ledger) applyPay(tx txData) ([]sui.ObjectChange, error) {
	var total uint64
	for _, id := range tx.InputCoins {
		c, ok := l.coins[id]
		if !ok || c.owner != tx.Sender {
			return nil, &abort{code: 1, reason: "input coin " + id + " not owned by sender"}
		}
		total += c.balance
	}

	var spend uint64
	for _, a := range tx.Amounts {
		spend += a
	}
	if spend > total {
		return nil, &abort{code: 2, reason: "insufficient coin balance"}
	}

	var changes []sui.ObjectChange
	primary := l.coins[tx.InputCoins[0]]
	primary.balance = total - spend
	primary.version++
	changes = append(changes, sui.ObjectChange{
		Type: sui.ObjectChangeMutated, Sender: tx.Sender, ObjectType: CoinObjectType,
		ObjectID: tx.InputCoins[0], Version: sui.U64(primary.version),
	})
	for _, id := range tx.InputCoins[1:] {
		delete(l.coins, id)
		changes = append(changes, sui.ObjectChange{Type: sui.ObjectChangeDeleted, Sender: tx.Sender, ObjectID: id})
	}

	for i, to := range tx.Recipients {
		id := l.nextID()
		l.coins[id] = &coin{owner: sui.NormalizeAddress(to), balance: tx.Amounts[i], version: 1}
		owner, _ := json.Marshal(map[string]string{"AddressOwner": to})
		changes = append(changes, sui.ObjectChange{
			Type: sui.ObjectChangeCreated, Sender: tx.Sender, Owner: owner,
			ObjectType: CoinObjectType, ObjectID: id, Version: 1,
		})
	}
	return changes, nil
}

func (l *Ledger) takeCoin(id, owner string) (uint64, error) {
	c, ok := l.coins[id]
	if !ok || c.owner != owner {
		return 0, &abort{code: 1, reason: "stake coin " + id + " not owned by sender"}
	}
	delete(l.coins, id)
	return c.balance, nil
}

func (l *Ledger) applyMoveCall(tx txData) ([]sui.ObjectChange, error) {
	switch tx.Function {
	case contract.FunctionCreateMatch:
		var coinID, bet string
		var choice bool
		if err := args(tx, &coinID, &bet, &choice); err != nil {
			return nil, err
		}
		betAmount, err := strconv.ParseUint(bet, 10, 64)
		if err != nil {
			return nil, &abort{code: 3, reason: "invalid bet amount"}
		}
		if c, ok := l.coins[coinID]; ok && c.balance != betAmount {
			return nil, &abort{code: 4, reason: "stake does not equal bet amount"}
		}
		if _, err := l.takeCoin(coinID, tx.Sender); err != nil {
			return nil, err
		}

		id := l.nextID()
		m, err := models.NewMatch(id, tx.Sender, betAmount, choice)
		if err != nil {
			return nil, &abort{code: 3, reason: err.Error()}
		}
		l.matches[id] = &matchEntry{match: m, version: 1}
		return []sui.ObjectChange{
			{Type: sui.ObjectChangeDeleted, Sender: tx.Sender, ObjectID: coinID},
			{Type: sui.ObjectChangeCreated, Sender: tx.Sender, ObjectType: l.contract.MatchType(), ObjectID: id, Version: 1},
		}, nil

	case contract.FunctionAddAnotherPlayer:
		var coinID, matchID string
		var choice bool
		if err := args(tx, &coinID, &matchID, &choice); err != nil {
			return nil, err
		}
		e, err := l.entry(matchID)
		if err != nil {
			return nil, err
		}
		c, ok := l.coins[coinID]
		if !ok || c.owner != tx.Sender {
			return nil, &abort{code: 1, reason: "stake coin " + coinID + " not owned by sender"}
		}
		next := e.match.Clone()
		if err := next.Join(tx.Sender, c.balance, choice); err != nil {
			return nil, &abort{code: 5, reason: err.Error()}
		}
		delete(l.coins, coinID)
		return l.commit(tx, matchID, next, sui.ObjectChange{Type: sui.ObjectChangeDeleted, Sender: tx.Sender, ObjectID: coinID}), nil

	case contract.FunctionSetWinner:
		var matchID string
		var result bool
		if err := args(tx, &matchID, &result); err != nil {
			return nil, err
		}
		e, err := l.entry(matchID)
		if err != nil {
			return nil, err
		}
		next := e.match.Clone()
		if err := next.Settle(result); err != nil {
			return nil, &abort{code: 6, reason: err.Error()}
		}
		return l.commit(tx, matchID, next), nil

	case contract.FunctionPayWinner:
		var matchID string
		if err := args(tx, &matchID); err != nil {
			return nil, err
		}
		e, err := l.entry(matchID)
		if err != nil {
			return nil, err
		}
		next := e.match.Clone()
		winner, pot, err := next.Pay()
		if err != nil {
			return nil, &abort{code: 7, reason: err.Error()}
		}
		coinID := l.nextID()
		l.coins[coinID] = &coin{owner: sui.NormalizeAddress(winner), balance: pot, version: 1}
		return l.commit(tx, matchID, next, sui.ObjectChange{
			Type: sui.ObjectChangeCreated, Sender: tx.Sender, ObjectType: CoinObjectType, ObjectID: coinID, Version: 1,
		}), nil
	}

	return nil, &abort{code: 0, reason: "function " + tx.Function + " not found"}
}

func (l *Ledger) entry(id string) (*matchEntry, error) {
	e, ok := l.matches[id]
	if !ok {
		return nil, &abort{code: 0, reason: "match " + id + " not found"}
	}
	return e, nil
}

func (l *Ledger) commit(tx txData, id string, next *models.Match, extra ...sui.ObjectChange) []sui.ObjectChange {
	e := l.matches[id]
	e.match = next
	e.version++
	return append(extra, sui.ObjectChange{
		Type: sui.ObjectChangeMutated, Sender: tx.Sender, ObjectType: l.contract.MatchType(),
		ObjectID: id, Version: sui.U64(e.version),
	})
}

func args(tx txData, dst ...any) error {
	if len(tx.Arguments) != len(dst) {
		return &abort{code: 0, reason: fmt.Sprintf("%s expects %d arguments, got %d", tx.Function, len(dst), len(tx.Arguments))}
	}
	for i, raw := range tx.Arguments {
		if err := json.Unmarshal(raw, dst[i]); err != nil {
			return &abort{code: 0, reason: fmt.Sprintf("argument %d: %v", i, err)}
		}
	}
	return nil
}
