// internal/service/inventory/infrastructure/cel_rule_test.go
package infrastructure

import (
	"testing"

	"atlas/internal/service/inventory/domain"

	"github.com/stretchr/testify/require"
)

func TestCELAlertRuleDefault(t *testing.T) {
	rule, err := NewCELAlertRule("available <= threshold")
	require.NoError(t, err)

	hit, err := rule.ShouldAlert(&domain.Inventory{Quantity: 10, Reserved: 8, LowStockThreshold: 3})
	require.NoError(t, err)
	require.True(t, hit)

	hit, err = rule.ShouldAlert(&domain.Inventory{Quantity: 10, Reserved: 2, LowStockThreshold: 3})
	require.NoError(t, err)
	require.False(t, hit)
}

func TestCELAlertRuleCustomExpression(t *testing.T) {
	rule, err := NewCELAlertRule("available <= threshold && reserved > 0")
	require.NoError(t, err)

	hit, err := rule.ShouldAlert(&domain.Inventory{Quantity: 3, Reserved: 0, LowStockThreshold: 5})
	require.NoError(t, err)
	require.False(t, hit)

	hit, err = rule.ShouldAlert(&domain.Inventory{Quantity: 3, Reserved: 1, LowStockThreshold: 5})
	require.NoError(t, err)
	require.True(t, hit)
}

func TestCELAlertRuleRejectsBadExpressions(t *testing.T) {
	_, err := NewCELAlertRule("available <=")
	require.Error(t, err)

	// 编译期就拒绝非布尔结果
	_, err = NewCELAlertRule("available + threshold")
	require.Error(t, err)
}
