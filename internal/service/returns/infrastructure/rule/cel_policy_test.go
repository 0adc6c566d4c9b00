// internal/service/returns/infrastructure/rule/cel_policy_test.go
package rule

import (
	"context"
	"testing"

	"storefront/internal/service/returns/domain/port"
)

func TestCELPolicyEvaluatesFacts(t *testing.T) {
	policy, err := NewCELPolicy(`qty <= purchased && days_since_order <= 30 && reason != "changed_mind"`)
	if err != nil {
		t.Fatalf("NewCELPolicy: %v", err)
	}

	cases := []struct {
		name string
		fact port.Fact
		want bool
	}{
		{"within window", port.Fact{SKU: "SKU-1", Qty: 1, Purchased: 2, Reason: "defect", DaysSinceOrder: 10}, true},
		{"over purchased", port.Fact{SKU: "SKU-1", Qty: 3, Purchased: 2, Reason: "defect", DaysSinceOrder: 10}, false},
		{"window elapsed", port.Fact{SKU: "SKU-1", Qty: 1, Purchased: 2, Reason: "defect", DaysSinceOrder: 45}, false},
		{"excluded reason", port.Fact{SKU: "SKU-1", Qty: 1, Purchased: 2, Reason: "changed_mind", DaysSinceOrder: 10}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := policy.Eligible(context.Background(), tc.fact)
			if err != nil {
				t.Fatalf("Eligible: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Eligible = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewCELPolicyRejectsBadRules(t *testing.T) {
	if _, err := NewCELPolicy(`qty +`); err == nil {
		t.Fatal("expected compile error for malformed expression")
	}
	if _, err := NewCELPolicy(`qty + purchased`); err == nil {
		t.Fatal("expected error for non-bool expression")
	}
	if _, err := NewCELPolicy(`unknown_var == 1`); err == nil {
		t.Fatal("expected error for undeclared variable")
	}
}
