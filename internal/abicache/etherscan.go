package abicache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goran-ethernal/ComplianceScanner/internal/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/internal/metrics"
	"github.com/goran-ethernal/ComplianceScanner/pkg/abicache"
	"github.com/goran-ethernal/ComplianceScanner/pkg/config"
	"golang.org/x/time/rate"
)

// Compile-time check to ensure EtherscanClient implements abicache.Fetcher interface.
var _ abicache.Fetcher = (*EtherscanClient)(nil)

// EtherscanClient fetches verified contract ABIs from an Etherscan compatible API.
type EtherscanClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	chainID    uint64
	maxRetries int
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewEtherscanClient creates a registry client from the ABI configuration.
func NewEtherscanClient(cfg config.ABIConfig, log *logger.Logger) *EtherscanClient {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &EtherscanClient{
		httpClient: &http.Client{Timeout: cfg.Timeout.Duration},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		chainID:    cfg.ChainID,
		maxRetries: cfg.GetMaxRetries(),
		limiter:    limiter,
		log:        log.WithComponent(common.ComponentABICache),
	}
}

// registryResponse is the envelope of a getabi response. Result holds the ABI as a JSON encoded string.
type registryResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// fetchError marks whether a failed attempt may be repeated.
type fetchError struct {
	err       error
	retryable bool
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

// FetchABI requests the ABI for address. Timeouts and malformed responses are retried
// up to the configured budget; other transport failures end the fetch immediately.
func (c *EtherscanClient) FetchABI(ctx context.Context, address string) (abicache.ABI, error) {
	attempts := c.maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		abi, err := c.fetchOnce(ctx, address)
		if err == nil {
			metrics.ABIFetchInc("success")
			return abi, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.ABIFetchInc("cancelled")
			return nil, ctxErr
		}

		var fe *fetchError
		if !errors.As(err, &fe) || !fe.retryable {
			metrics.ABIFetchInc("error")
			c.log.Errorf("failed to get ABI for %s: %v", address, err)
			return nil, fmt.Errorf("%w: %s: %w", abicache.ErrABINotFound, address, err)
		}

		metrics.ABIFetchInc("retry")
		c.log.Warnf("ABI request for %s failed (attempt %d/%d): %v", address, attempt, attempts, err)
	}

	metrics.ABIFetchInc("exhausted")
	c.log.Errorf("failed to get ABI for %s after %d attempts", address, attempts)
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", abicache.ErrABINotFound, address, attempts, lastErr)
}

func (c *EtherscanClient) fetchOnce(ctx context.Context, address string) (abicache.ABI, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(address), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &fetchError{err: fmt.Errorf("http request: %w", err), retryable: isTimeout(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &fetchError{err: fmt.Errorf("read response: %w", err), retryable: isTimeout(err)}
	}

	abi, err := decodeRegistryResponse(body)
	if err != nil {
		return nil, &fetchError{err: fmt.Errorf("http status %d: %w", resp.StatusCode, err), retryable: true}
	}

	return abi, nil
}

func (c *EtherscanClient) requestURL(address string) string {
	query := url.Values{}
	if c.chainID != 0 {
		query.Set("chainid", strconv.FormatUint(c.chainID, 10))
	}
	query.Set("module", "contract")
	query.Set("action", "getabi")
	query.Set("address", address)
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}

	sep := "?"
	if u, err := url.Parse(c.endpoint); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return c.endpoint + sep + query.Encode()
}

// decodeRegistryResponse extracts the ABI from a response whose result field is a JSON encoded string.
func decodeRegistryResponse(body []byte) (abicache.ABI, error) {
	var resp registryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	var encoded string
	if err := json.Unmarshal(resp.Result, &encoded); err != nil {
		return nil, fmt.Errorf("result is not a string: %w", err)
	}

	var abi abicache.ABI
	if err := json.Unmarshal([]byte(encoded), &abi); err != nil {
		return nil, fmt.Errorf("result is not an ABI (%s): %w", resp.Message, err)
	}

	return abi, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
