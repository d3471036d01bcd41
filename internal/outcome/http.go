package outcome

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/fleet/internal/domain"
)

// HTTPSource 从外部策略服务拉取交易结果
// 协作方暴露 GET /outcomes，返回 TradeOutcome 数组；
// 拉空是常态，直接返回 nil。
type HTTPSource struct {
	client *resty.Client
}

// NewHTTP 创建 HTTP 收益源
func NewHTTP(endpoint string, timeout time.Duration) *HTTPSource {
	if strings.HasSuffix(endpoint, "/") {
		endpoint = endpoint[:len(endpoint)-1]
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	// resty 会自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &HTTPSource{client: client}
}

// Poll 拉取一批待入账的交易结果
func (s *HTTPSource) Poll(ctx context.Context) ([]domain.TradeOutcome, error) {
	var outcomes []domain.TradeOutcome
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(&outcomes).
		Get("/outcomes")
	if err != nil {
		return nil, errors.Wrap(err, "拉取外部交易结果失败")
	}
	if resp.StatusCode() == http.StatusNoContent {
		return nil, nil
	}
	if resp.IsError() {
		return nil, errors.Errorf("外部收益源返回异常状态: %d", resp.StatusCode())
	}
	return outcomes, nil
}
