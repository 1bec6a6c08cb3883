package chain

import (
	"math"
	"testing"
)

func TestStorageCostBreakdown(t *testing.T) {
	// nShards=10 -> k=4, shardLen=ceil(1000/4)=250, encodedSize=250*10*2=5000
	cost := StorageCost(1000, 10, 3, 2, 5)

	if cost.StorageCost != 5000*2*3 {
		t.Errorf("storageCost = %d, want %d", cost.StorageCost, uint64(5000*2*3))
	}
	if cost.WriteCost != 5000*5 {
		t.Errorf("writeCost = %d, want %d", cost.WriteCost, uint64(5000*5))
	}
	if cost.TotalCost != cost.StorageCost+cost.WriteCost {
		t.Error("totalCost must equal storageCost + writeCost")
	}
}

func TestStorageCostZeroLength(t *testing.T) {
	cost := StorageCost(0, 10, 5, 100, 100)
	if cost.StorageCost != 0 || cost.WriteCost != 0 || cost.TotalCost != 0 {
		t.Errorf("zero-length blob should cost nothing, got %+v", cost)
	}
}

func TestStorageCostSaturatesOnOverflow(t *testing.T) {
	cost := StorageCost(math.MaxUint64, 3, math.MaxUint32, math.MaxUint64, math.MaxUint64)
	if cost.TotalCost != math.MaxUint64 {
		t.Errorf("totalCost = %d, want MaxUint64 (saturated)", cost.TotalCost)
	}
}

func TestSafeMulOverflow(t *testing.T) {
	if got := safeMul(math.MaxUint64, 2); got != math.MaxUint64 {
		t.Errorf("safeMul overflow: got %d, want MaxUint64", got)
	}
	if got := safeMul(10, 20); got != 200 {
		t.Errorf("safeMul(10, 20) = %d, want 200", got)
	}
}

func TestSafeAddOverflow(t *testing.T) {
	if got := safeAdd(math.MaxUint64, 1); got != math.MaxUint64 {
		t.Errorf("safeAdd overflow: got %d, want MaxUint64", got)
	}
	if got := safeAdd(100, 200); got != 300 {
		t.Errorf("safeAdd(100, 200) = %d, want 300", got)
	}
}
