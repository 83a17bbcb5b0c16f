package diskguard

import "testing"

func TestFreeGB(t *testing.T) {
	free, err := FreeGB(t.TempDir())
	if err != nil {
		t.Fatalf("FreeGB failed: %v", err)
	}
	if free <= 0 {
		t.Errorf("expected positive free space, got %f", free)
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()

	ok, free, err := Check(dir, 0)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !ok {
		t.Errorf("expected ok with zero minimum, free=%f", free)
	}

	// No filesystem has an exabyte free
	ok, _, err = Check(dir, 1<<30)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if ok {
		t.Error("expected not ok with absurd minimum")
	}
}

func TestFreeGBMissingPath(t *testing.T) {
	if _, err := FreeGB("/definitely/not/a/path"); err == nil {
		t.Error("expected error for missing path")
	}
}
