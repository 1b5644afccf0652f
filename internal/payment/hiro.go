package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hive402/backend/internal/telemetry"
	"github.com/hive402/backend/pkg/retry"
)

const DefaultHiroURL = "https://api.testnet.hiro.so"

var (
	ErrTxNotFound  = errors.New("transaction not found")
	ErrTxMalformed = errors.New("transaction id rejected by rail")
)

// Transaction is the subset of a rail transaction the verifier inspects.
type Transaction struct {
	TxID       string
	Status     string
	Type       string
	ContractID string
	Function   string
	Args       []FunctionArg
}

type FunctionArg struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Repr string `json:"repr"`
}

// TxLookup resolves a transaction id on the payment rail.
type TxLookup interface {
	LookupTx(ctx context.Context, txID string) (*Transaction, error)
}

// HiroClient reads transactions from the Hiro Stacks API.
type HiroClient struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
}

func NewHiroClient(baseURL string, logger *slog.Logger) *HiroClient {
	if baseURL == "" {
		baseURL = DefaultHiroURL
	}
	return &HiroClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			OnRetry: func(attempt int, err error) {
				logger.Warn("rail lookup retry", "attempt", attempt, "error", err)
			},
		},
	}
}

type hiroTx struct {
	TxID         string `json:"tx_id"`
	TxStatus     string `json:"tx_status"`
	TxType       string `json:"tx_type"`
	ContractCall *struct {
		ContractID   string        `json:"contract_id"`
		FunctionName string        `json:"function_name"`
		FunctionArgs []FunctionArg `json:"function_args"`
	} `json:"contract_call"`
}

func (c *HiroClient) LookupTx(ctx context.Context, txID string) (*Transaction, error) {
	start := time.Now()
	defer func() { telemetry.PaymentRailLatency.Observe(time.Since(start).Seconds()) }()

	var tx hiroTx
	err := retry.Do(ctx, c.retry, func() error {
		return c.fetch(ctx, txID, &tx)
	})
	if err != nil {
		return nil, err
	}
	out := &Transaction{TxID: tx.TxID, Status: tx.TxStatus, Type: tx.TxType}
	if tx.ContractCall != nil {
		out.ContractID = tx.ContractCall.ContractID
		out.Function = tx.ContractCall.FunctionName
		out.Args = tx.ContractCall.FunctionArgs
	}
	return out, nil
}

func (c *HiroClient) fetch(ctx context.Context, txID string, into *hiroTx) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/extended/v1/tx/"+url.PathEscape(txID), nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("build rail request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rail lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return retry.Permanent(ErrTxNotFound)
	case resp.StatusCode == http.StatusBadRequest:
		return retry.Permanent(ErrTxMalformed)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("rail lookup: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return retry.Permanent(fmt.Errorf("rail lookup: unexpected status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return retry.Permanent(fmt.Errorf("decode rail transaction: %w", err))
	}
	return nil
}
