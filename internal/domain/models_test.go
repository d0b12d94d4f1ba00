package domain

import "testing"

func TestApplyAggregates(t *testing.T) {
	cases := []struct {
		name       string
		batch      ImportBatch
		soldQty    int
		soldValue  int64
		wantStatus string
		wantRemain int
		wantProfit int64
		wantChange bool
	}{
		{
			name:       "partial sale stays active",
			batch:      ImportBatch{TotalQuantity: 4, ImportPricePerUnit: 100, Status: BatchActive},
			soldQty:    2,
			soldValue:  260,
			wantStatus: BatchActive,
			wantRemain: 2,
			wantProfit: 60,
			wantChange: true,
		},
		{
			name:       "full sale completes",
			batch:      ImportBatch{TotalQuantity: 2, ImportPricePerUnit: 100, Status: BatchActive},
			soldQty:    2,
			soldValue:  250,
			wantStatus: BatchCompleted,
			wantRemain: 0,
			wantProfit: 50,
			wantChange: true,
		},
		{
			name: "oversold clamps remaining at zero",
			batch: ImportBatch{
				TotalQuantity: 2, ImportPricePerUnit: 100, Status: BatchActive,
			},
			soldQty:    3,
			soldValue:  330,
			wantStatus: BatchCompleted,
			wantRemain: 0,
			wantProfit: 30,
			wantChange: true,
		},
		{
			name: "cancelled status is sticky",
			batch: ImportBatch{
				TotalQuantity: 2, ImportPricePerUnit: 100, Status: BatchCancelled,
			},
			soldQty:    2,
			soldValue:  250,
			wantStatus: BatchCancelled,
			wantRemain: 0,
			wantProfit: 50,
			wantChange: true,
		},
		{
			name: "in sync reports no change",
			batch: ImportBatch{
				TotalQuantity: 2, ImportPricePerUnit: 100, Status: BatchCompleted,
				TotalSoldQuantity: 2, TotalSoldValue: 250, RemainingQuantity: 0, ProfitLoss: 50,
			},
			soldQty:    2,
			soldValue:  250,
			wantStatus: BatchCompleted,
			wantRemain: 0,
			wantProfit: 50,
			wantChange: false,
		},
		{
			name: "loss is negative profit",
			batch: ImportBatch{
				TotalQuantity: 2, ImportPricePerUnit: 100, Status: BatchActive,
			},
			soldQty:    1,
			soldValue:  80,
			wantStatus: BatchActive,
			wantRemain: 1,
			wantProfit: -20,
			wantChange: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			batch := tc.batch
			changed := batch.ApplyAggregates(tc.soldQty, tc.soldValue)
			if changed != tc.wantChange {
				t.Fatalf("changed = %t, want %t", changed, tc.wantChange)
			}
			if batch.Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", batch.Status, tc.wantStatus)
			}
			if batch.RemainingQuantity != tc.wantRemain {
				t.Fatalf("remaining = %d, want %d", batch.RemainingQuantity, tc.wantRemain)
			}
			if batch.ProfitLoss != tc.wantProfit {
				t.Fatalf("profit = %d, want %d", batch.ProfitLoss, tc.wantProfit)
			}
			if batch.TotalSoldQuantity != tc.soldQty || batch.TotalSoldValue != tc.soldValue {
				t.Fatalf("sold aggregates = (%d, %d), want (%d, %d)",
					batch.TotalSoldQuantity, batch.TotalSoldValue, tc.soldQty, tc.soldValue)
			}
		})
	}
}

func TestIsValidPaymentMethod(t *testing.T) {
	for _, method := range []string{PaymentCash, PaymentCard, PaymentTransfer} {
		if !IsValidPaymentMethod(method) {
			t.Fatalf("expected %s to be valid", method)
		}
	}
	if IsValidPaymentMethod("bitcoin") || IsValidPaymentMethod("") {
		t.Fatalf("expected unknown methods to be invalid")
	}
}
