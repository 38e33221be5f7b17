package sui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"shares-gate/internal/chain"
	"shares-gate/internal/storage"
)

const defaultEventLimit = 100

// Options parameterise the cursor adapter.
type Options struct {
	Name            string
	RPCURL          string
	PackageID       string
	TradingObjectID string
	EventLimit      uint64
	Timeout         time.Duration
}

// Adapter ingests Trade events from a Move-style chain by following the
// event-log cursor. The serialized cursor is the checkpoint; the numeric
// position stored alongside it is only a schema surrogate.
type Adapter struct {
	opts   Options
	logger zerolog.Logger
	client *http.Client
}

// New builds the cursor adapter.
func New(opts Options, logger zerolog.Logger) *Adapter {
	if opts.Name == "" {
		opts.Name = "sui"
	}
	if opts.EventLimit == 0 {
		opts.EventLimit = defaultEventLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	return &Adapter{
		opts:   opts,
		logger: logger.With().Str("component", "sui_adapter").Str("chain", opts.Name).Logger(),
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// Name implements chain.Adapter.
func (a *Adapter) Name() string {
	return a.opts.Name
}

// Bootstrap implements chain.Source. Ingestion starts from the beginning of
// the event log when no cursor is stored.
func (a *Adapter) Bootstrap() storage.Checkpoint {
	return storage.Checkpoint{ChainType: a.opts.Name}
}

type tradePayload struct {
	Trader      string `json:"trader"`
	Subject     string `json:"subject"`
	IsBuy       bool   `json:"is_buy"`
	Amount      string `json:"amount"`
	Price       string `json:"price"`
	ProtocolFee string `json:"protocol_fee"`
	SubjectFee  string `json:"subject_fee"`
	Supply      string `json:"supply"`
}

type rawEvent struct {
	ID         EventID      `json:"id"`
	ParsedJSON tradePayload `json:"parsedJson"`
}

type eventPage struct {
	Data        []rawEvent `json:"data"`
	NextCursor  *EventID   `json:"nextCursor"`
	HasNextPage bool       `json:"hasNextPage"`
}

// Next fetches the next event page after the stored cursor. A nil batch
// means the log has no further pages.
func (a *Adapter) Next(ctx context.Context, cp storage.Checkpoint) (*chain.Batch, error) {
	var cursor interface{}
	if cp.CursorToken != "" {
		cursor = ParseCursor(cp.CursorToken)
	}

	page, err := a.queryEvents(ctx, cursor)
	if err != nil {
		return nil, err
	}

	if len(page.Data) == 0 && !page.HasNextPage {
		return nil, nil
	}

	events := make([]chain.TradeEvent, 0, len(page.Data))
	for _, raw := range page.Data {
		ev, decodeErr := a.decodeTrade(raw)
		if decodeErr != nil {
			a.logger.Error().Err(decodeErr).
				Str("tx_digest", raw.ID.TxDigest).
				Str("event_seq", raw.ID.EventSeq).
				Msg("undecodable trade event, skipping")
			continue
		}
		events = append(events, ev)
	}

	next := cp
	if page.NextCursor != nil {
		next = storage.Checkpoint{
			ChainType:   a.opts.Name,
			Position:    page.NextCursor.Surrogate(),
			CursorToken: page.NextCursor.Encode(),
		}
	}

	return &chain.Batch{Events: events, Next: next}, nil
}

func (a *Adapter) decodeTrade(raw rawEvent) (chain.TradeEvent, error) {
	amount, err := decimal.NewFromString(raw.ParsedJSON.Amount)
	if err != nil {
		return chain.TradeEvent{}, fmt.Errorf("parse trade amount %q: %w", raw.ParsedJSON.Amount, err)
	}

	seq, err := strconv.ParseUint(raw.ID.EventSeq, 10, 64)
	if err != nil {
		return chain.TradeEvent{}, fmt.Errorf("parse event seq %q: %w", raw.ID.EventSeq, err)
	}

	return chain.TradeEvent{
		Trader:    strings.TrimPrefix(raw.ParsedJSON.Trader, "0x"),
		Subject:   strings.TrimPrefix(raw.ParsedJSON.Subject, "0x"),
		IsBuy:     raw.ParsedJSON.IsBuy,
		Amount:    amount,
		TxID:      raw.ID.TxDigest,
		LogIndex:  seq,
		ChainType: a.opts.Name,
	}, nil
}

func (a *Adapter) queryEvents(ctx context.Context, cursor interface{}) (*eventPage, error) {
	eventType := "package::shares_trading::Trade"
	if a.opts.PackageID != "" {
		eventType = fmt.Sprintf("%s::shares_trading::Trade", a.opts.PackageID)
	}

	params := map[string]interface{}{
		"query":            map[string]string{"MoveEventType": eventType},
		"cursor":           cursor,
		"limit":            a.opts.EventLimit,
		"descending_order": false,
	}

	var page eventPage
	if err := a.rpcCall(ctx, "suix_queryEvents", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// VerifySignature implements chain.Adapter with genuine ed25519
// verification of the base64 serialized signature.
func (a *Adapter) VerifySignature(challenge, signature string) (string, error) {
	return verifyPersonalMessage(challenge, signature)
}

// ShareBalance reads the live balance through a dev-inspect view call.
func (a *Adapter) ShareBalance(ctx context.Context, subject, user string) (uint64, error) {
	params := []interface{}{
		"0x0",
		map[string]interface{}{
			"kind": "moveCall",
			"data": map[string]interface{}{
				"packageObjectId": a.opts.PackageID,
				"module":          "shares_trading",
				"function":        "get_shares_balance",
				"arguments": []string{
					a.opts.TradingObjectID,
					withHexPrefix(subject),
					withHexPrefix(user),
				},
			},
		},
	}

	var result struct {
		Results []struct {
			ReturnValues []json.Number `json:"returnValues"`
		} `json:"results"`
	}
	if err := a.rpcCall(ctx, "sui_devInspectTransactionBlock", params, &result); err != nil {
		return 0, err
	}

	if len(result.Results) == 0 || len(result.Results[0].ReturnValues) == 0 {
		return 0, nil
	}
	balance, err := strconv.ParseUint(result.Results[0].ReturnValues[0].String(), 10, 64)
	if err != nil {
		return 0, nil
	}
	return balance, nil
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func (a *Adapter) rpcCall(ctx context.Context, method string, params, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.opts.RPCURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s request failed: status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if len(rpcResp.Error) > 0 {
		return fmt.Errorf("%s returned error: %s", method, string(rpcResp.Error))
	}
	if rpcResp.Result == nil {
		return fmt.Errorf("%s returned no result", method)
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("parse %s result: %w", method, err)
	}
	return nil
}

func withHexPrefix(addr string) string {
	if strings.HasPrefix(addr, "0x") {
		return addr
	}
	return "0x" + addr
}

var (
	_ chain.Adapter = (*Adapter)(nil)
	_ chain.Source  = (*Adapter)(nil)
)
