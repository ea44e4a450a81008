package sui

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

const defaultHTTPTimeout = 30 * time.Second

// Client talks to a fullnode over its JSON-RPC API.
type Client struct {
	rpc *rpc.Client
	url string
}

func Dial(ctx context.Context, url string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, url, err)
	}

	return &Client{rpc: c, url: url}, nil
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	return classify(method, c.rpc.CallContext(ctx, result, method, args...))
}

func (c *Client) GetObject(ctx context.Context, id string) (*ObjectData, error) {
	var resp ObjectResponse
	opts := ObjectDataOptions{ShowType: true, ShowOwner: true, ShowContent: true}
	if err := c.call(ctx, &resp, "sui_getObject", id, opts); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		if resp.Error.Code == "deleted" {
			obj := &ObjectData{ObjectID: id, Digest: resp.Error.Digest, Deleted: true}
			if resp.Error.Version != nil {
				obj.Version = *resp.Error.Version
			}
			return obj, nil
		}
		return nil, fmt.Errorf("%w: %s (%s)", ErrObjectNotFound, id, resp.Error.Code)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}

	return resp.Data, nil
}

func (c *Client) GetBalance(ctx context.Context, owner, coinType string) (*Balance, error) {
	if coinType == "" {
		coinType = SuiCoinType
	}

	var balance Balance
	if err := c.call(ctx, &balance, "suix_getBalance", owner, coinType); err != nil {
		return nil, err
	}
	return &balance, nil
}

func (c *Client) GetCoins(ctx context.Context, owner, coinType string, cursor *string, limit int) (*CoinPage, error) {
	if coinType == "" {
		coinType = SuiCoinType
	}

	var page CoinPage
	if err := c.call(ctx, &page, "suix_getCoins", owner, coinType, cursor, limit); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) MoveCall(ctx context.Context, req MoveCallRequest) (*TransactionBytes, error) {
	typeArgs := req.TypeArguments
	if typeArgs == nil {
		typeArgs = []string{}
	}

	var tx TransactionBytes
	err := c.call(ctx, &tx, "unsafe_moveCall",
		req.Signer,
		req.PackageObjectID,
		req.Module,
		req.Function,
		typeArgs,
		req.Arguments,
		req.Gas,
		strconv.FormatUint(req.GasBudget, 10),
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *Client) PaySui(ctx context.Context, req PaySuiRequest) (*TransactionBytes, error) {
	amounts := make([]string, len(req.Amounts))
	for i, a := range req.Amounts {
		amounts[i] = strconv.FormatUint(a, 10)
	}

	var tx TransactionBytes
	err := c.call(ctx, &tx, "unsafe_paySui",
		req.Signer,
		req.InputCoins,
		req.Recipients,
		amounts,
		strconv.FormatUint(req.GasBudget, 10),
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *Client) DryRun(ctx context.Context, txBytes string) (*DryRunResponse, error) {
	var resp DryRunResponse
	if err := c.call(ctx, &resp, "sui_dryRunTransactionBlock", txBytes); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExecuteTransaction submits a signed transaction and waits for local
// execution so the returned effects are final.
func (c *Client) ExecuteTransaction(ctx context.Context, txBytes string, signatures []string) (*TransactionResponse, error) {
	opts := TransactionOptions{ShowEffects: true, ShowObjectChanges: true}

	var resp TransactionResponse
	err := c.call(ctx, &resp, "sui_executeTransactionBlock",
		txBytes, signatures, opts, RequestTypeWaitForLocalExecution)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) QueryTransactionBlocks(ctx context.Context, query TransactionQuery, cursor *string, limit int, descending bool) (*TransactionPage, error) {
	var page TransactionPage
	if err := c.call(ctx, &page, "suix_queryTransactionBlocks", query, cursor, limit, descending); err != nil {
		return nil, err
	}
	return &page, nil
}
