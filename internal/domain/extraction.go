package domain

import "time"

// ProfitExtraction 一次利润提取的不可变记录（只追加台账，创建后不再修改）
type ProfitExtraction struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Amount    float64   `json:"amount"`  // 提取金额 = 提取时 balance - initialBalance
	Percent   float64   `json:"percent"` // 占提取时 balance 的百分比
	Timestamp time.Time `json:"timestamp"`

	Reinvested      bool    `json:"reinvested"`                  // 是否注入了新账户
	SeededAccountID string  `json:"seeded_account_id,omitempty"` // 新账户 ID（如有）
	SeededAmount    float64 `json:"seeded_amount,omitempty"`     // 注入金额
	WithdrawnAmount float64 `json:"withdrawn_amount"`            // 未再投资部分，视为出金
}
