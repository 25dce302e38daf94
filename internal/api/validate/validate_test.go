package validate

import "testing"

func TestIndexName_RejectsEmptyAndInvalidChars(t *testing.T) {
	if err := IndexName(""); err == nil {
		t.Fatalf("expected error for empty index name")
	}
	if err := IndexName("products/v2"); err == nil {
		t.Fatalf("expected error for invalid characters")
	}
	if err := IndexName("products_v2"); err != nil {
		t.Fatalf("expected valid index name to pass, got %v", err)
	}
}

func TestTenantID_RejectsEmpty(t *testing.T) {
	if err := TenantID(""); err == nil {
		t.Fatalf("expected error for empty tenant id")
	}
	if err := TenantID("tenant-a"); err != nil {
		t.Fatalf("expected valid tenant id to pass, got %v", err)
	}
}

func TestTrafficSplit_RejectsOutOfRange(t *testing.T) {
	if err := TrafficSplit(-0.1); err == nil {
		t.Fatalf("expected error for negative split")
	}
	if err := TrafficSplit(1.1); err == nil {
		t.Fatalf("expected error for split above 1")
	}
	if err := TrafficSplit(0.5); err != nil {
		t.Fatalf("expected valid split to pass, got %v", err)
	}
}

func TestHitsPerPage_RejectsOutOfRange(t *testing.T) {
	if err := HitsPerPage(-1); err == nil {
		t.Fatalf("expected error for negative hitsPerPage")
	}
	if err := HitsPerPage(5000); err == nil {
		t.Fatalf("expected error for hitsPerPage above ceiling")
	}
	if err := HitsPerPage(20); err != nil {
		t.Fatalf("expected valid hitsPerPage to pass, got %v", err)
	}
}
