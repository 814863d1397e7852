package clock

import (
	"testing"
	"time"
)

func TestManual_NeverGoesBackwards(t *testing.T) {
	c := NewManual(100)
	c.Set(50)
	if c.Now() != 100 {
		t.Errorf("expected 100 after backwards Set, got %d", c.Now())
	}
	c.Set(150)
	c.Advance(10)
	c.Advance(-5)
	if c.Now() != 160 {
		t.Errorf("expected 160, got %d", c.Now())
	}
}

func TestBlocks_Height(t *testing.T) {
	genesis := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBlocks(genesis, time.Minute)

	b.now = func() time.Time { return genesis.Add(90*time.Minute + 30*time.Second) }
	if got := b.Now(); got != 90 {
		t.Errorf("expected height 90, got %d", got)
	}

	b.now = func() time.Time { return genesis.Add(-time.Hour) }
	if got := b.Now(); got != 0 {
		t.Errorf("expected height 0 before genesis, got %d", got)
	}
}

func TestNewBlocks_DefaultInterval(t *testing.T) {
	b := NewBlocks(time.Now(), 0)
	if b.Interval != 10*time.Minute {
		t.Errorf("expected default interval 10m, got %s", b.Interval)
	}
}
