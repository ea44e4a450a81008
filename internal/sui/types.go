package sui

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	SuiCoinType = "0x2::sui::SUI"

	RequestTypeWaitForLocalExecution = "WaitForLocalExecution"

	ExecutionStatusSuccess = "success"
	ExecutionStatusFailure = "failure"

	ObjectChangeCreated = "created"
	ObjectChangeMutated = "mutated"
	ObjectChangeDeleted = "deleted"
)

// U64 is a u64 as rendered by the node: a decimal string, occasionally a
// bare number.
type U64 uint64

func (u U64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u *U64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("sui: invalid u64 %s: %w", string(data), err)
	}
	*u = U64(v)
	return nil
}

type ObjectDataOptions struct {
	ShowType    bool `json:"showType,omitempty"`
	ShowOwner   bool `json:"showOwner,omitempty"`
	ShowContent bool `json:"showContent,omitempty"`
}

type ObjectResponse struct {
	Data  *ObjectData          `json:"data,omitempty"`
	Error *ObjectResponseError `json:"error,omitempty"`
}

type ObjectResponseError struct {
	Code     string `json:"code"`
	ObjectID string `json:"object_id,omitempty"`
	Version  *U64   `json:"version,omitempty"`
	Digest   string `json:"digest,omitempty"`
}

type ObjectData struct {
	ObjectID string          `json:"objectId"`
	Version  U64             `json:"version"`
	Digest   string          `json:"digest"`
	Type     string          `json:"type,omitempty"`
	Owner    json.RawMessage `json:"owner,omitempty"`
	Content  *MoveContent    `json:"content,omitempty"`

	// Deleted is set locally when the node reports the object as deleted.
	Deleted bool `json:"-"`
}

type MoveContent struct {
	DataType          string          `json:"dataType"`
	Type              string          `json:"type"`
	HasPublicTransfer bool            `json:"hasPublicTransfer"`
	Fields            json.RawMessage `json:"fields"`
}

type Balance struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    U64    `json:"totalBalance"`
}

type Coin struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Version      U64    `json:"version"`
	Digest       string `json:"digest"`
	Balance      U64    `json:"balance"`
}

type CoinPage struct {
	Data        []Coin  `json:"data"`
	NextCursor  *string `json:"nextCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

type ObjectRef struct {
	ObjectID string `json:"objectId"`
	Version  U64    `json:"version"`
	Digest   string `json:"digest"`
}

// MoveCallRequest is the argument list of unsafe_moveCall. Arguments are
// JSON values: object ids as strings, bools as bools, u64 as decimal strings.
type MoveCallRequest struct {
	Signer          string
	PackageObjectID string
	Module          string
	Function        string
	TypeArguments   []string
	Arguments       []any
	Gas             *string
	GasBudget       uint64
}

func (r MoveCallRequest) Target() string {
	return fmt.Sprintf("%s::%s::%s", r.PackageObjectID, r.Module, r.Function)
}

type PaySuiRequest struct {
	Signer     string
	InputCoins []string
	Recipients []string
	Amounts    []uint64
	GasBudget  uint64
}

// TransactionBytes is an unsigned transaction built by the node.
type TransactionBytes struct {
	TxBytes      string          `json:"txBytes"`
	Gas          []ObjectRef     `json:"gas"`
	InputObjects json.RawMessage `json:"inputObjects,omitempty"`
}

type ExecutionStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type ObjectChange struct {
	Type       string          `json:"type"`
	Sender     string          `json:"sender,omitempty"`
	Owner      json.RawMessage `json:"owner,omitempty"`
	ObjectType string          `json:"objectType,omitempty"`
	ObjectID   string          `json:"objectId"`
	Version    U64             `json:"version"`
	Digest     string          `json:"digest,omitempty"`
}

type TransactionResponse struct {
	Digest        string          `json:"digest"`
	Effects       json.RawMessage `json:"effects,omitempty"`
	ObjectChanges []ObjectChange  `json:"objectChanges,omitempty"`
	TimestampMs   *U64            `json:"timestampMs,omitempty"`
	Errors        []string        `json:"errors,omitempty"`
}

// Status reads effects.status; responses without effects report success.
func (r *TransactionResponse) Status() (ExecutionStatus, error) {
	return effectsStatus(r.Effects)
}

type DryRunResponse struct {
	Effects       json.RawMessage `json:"effects"`
	ObjectChanges []ObjectChange  `json:"objectChanges,omitempty"`
}

func (r *DryRunResponse) Status() (ExecutionStatus, error) {
	return effectsStatus(r.Effects)
}

func effectsStatus(effects json.RawMessage) (ExecutionStatus, error) {
	if len(effects) == 0 || string(effects) == "null" {
		return ExecutionStatus{Status: ExecutionStatusSuccess}, nil
	}

	var e struct {
		Status ExecutionStatus `json:"status"`
	}
	if err := json.Unmarshal(effects, &e); err != nil {
		return ExecutionStatus{}, fmt.Errorf("sui: decode effects status: %w", err)
	}
	return e.Status, nil
}

type TransactionOptions struct {
	ShowInput         bool `json:"showInput,omitempty"`
	ShowEffects       bool `json:"showEffects,omitempty"`
	ShowEvents        bool `json:"showEvents,omitempty"`
	ShowObjectChanges bool `json:"showObjectChanges,omitempty"`
}

type MoveFunctionFilter struct {
	Package  string `json:"package"`
	Module   string `json:"module,omitempty"`
	Function string `json:"function,omitempty"`
}

// TransactionFilter renders as one of the node's single-key filter objects.
type TransactionFilter struct {
	FromAddress  string              `json:"FromAddress,omitempty"`
	MoveFunction *MoveFunctionFilter `json:"MoveFunction,omitempty"`
}

type TransactionQuery struct {
	Filter  *TransactionFilter  `json:"filter,omitempty"`
	Options *TransactionOptions `json:"options,omitempty"`
}

type TransactionPage struct {
	Data        []TransactionResponse `json:"data"`
	NextCursor  *string               `json:"nextCursor"`
	HasNextPage bool                  `json:"hasNextPage"`
}

func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
