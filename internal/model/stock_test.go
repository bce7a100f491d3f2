package model

import (
	"math"
	"testing"
	"time"
)

func TestNewSnapshotUsesFirstBarCloseAsSessionOpen(t *testing.T) {
	bars := []Bar{
		{Open: 9.5, Close: 10.00, Volume: 500},
		{Open: 10.2, Close: 10.40, Volume: 700},
		{Open: 10.5, Close: 11.00, Volume: 1_000_000},
	}
	s, ok := NewSnapshot("ABC", bars)
	if !ok {
		t.Fatal("expected snapshot")
	}
	if s.SessionOpen != 10.00 {
		t.Errorf("SessionOpen = %v, want first bar close 10.00", s.SessionOpen)
	}
	if s.Price != 11.00 || s.Volume != 1_000_000 {
		t.Errorf("Price/Volume = %v/%v, want last bar 11.00/1000000", s.Price, s.Volume)
	}
}

func TestNewSnapshotEmpty(t *testing.T) {
	if _, ok := NewSnapshot("ABC", nil); ok {
		t.Error("empty bars must not produce a snapshot")
	}
}

func TestSnapshotDefaults(t *testing.T) {
	s := Snapshot{Symbol: "ABC", Price: 11, Volume: 1_000_000, SessionOpen: 10}
	if !math.IsInf(s.SharesOrInf(), 1) {
		t.Errorf("missing shares = %v, want +Inf", s.SharesOrInf())
	}
	if got := s.RelVolume(); got != 0 {
		t.Errorf("RelVolume with missing avg = %v, want 0", got)
	}
	s.AvgVolume = Found(0)
	if got := s.RelVolume(); got != 0 {
		t.Errorf("RelVolume with zero avg = %v, want 0", got)
	}
	s.AvgVolume = Found(100_000)
	if got := s.RelVolume(); got != 10 {
		t.Errorf("RelVolume = %v, want 10", got)
	}
	s.Shares = Found(0)
	if got := s.SharesOrInf(); got != 0 {
		t.Errorf("found zero shares = %v, want 0", got)
	}
}

func TestAlertString(t *testing.T) {
	s := Snapshot{
		Symbol:      "ABC",
		Price:       11,
		Volume:      1_000_000,
		SessionOpen: 10,
		Shares:      Found(5e7),
		AvgVolume:   Found(100_000),
	}
	a := NewAlert(&s, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC))
	want := "ALERT: ABC | Price: $11.00 | Change: 10.00% | Rel Vol: 10.0x | Shares: 50.00M"
	if got := a.String(); got != want {
		t.Errorf("String() =\n%q\nwant\n%q", got, want)
	}
}

func TestLookupOr(t *testing.T) {
	if got := Missing().Or(7); got != 7 {
		t.Errorf("Missing().Or(7) = %v", got)
	}
	if got := Found(0).Or(7); got != 0 {
		t.Errorf("Found(0).Or(7) = %v", got)
	}
}
