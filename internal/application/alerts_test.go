package application

import (
	"strings"
	"testing"
	"time"

	"github.com/example/therapy-scheduler/internal/persistence"
	"github.com/example/therapy-scheduler/internal/rotation"
	"github.com/example/therapy-scheduler/internal/testfixtures"
)

func TestDetect_RotationImminent(t *testing.T) {
	detector := NewAlertDetector(AlertConfig{})
	now := testfixtures.ReferenceTime()

	session := testfixtures.NewSessionFixture(
		testfixtures.WithSessionStartedAt(now.Add(-28 * time.Minute)),
	).Persistence()
	eval := &rotation.Evaluation{
		ActiveSlot: 1,
		Remaining:  90 * time.Second,
		Next:       rotation.ActionContinue,
	}

	alerts := detector.Detect(session, eval, now)
	if len(alerts) != 1 || alerts[0].Kind != AlertRotationImminent {
		t.Fatalf("Expected rotation_imminent, got %v", alerts)
	}
	if !strings.Contains(alerts[0].Message, "2 min") {
		t.Errorf("Expected rounded-up minutes in message, got %q", alerts[0].Message)
	}
}

func TestDetect_NoImminentAlertOutsideWindow(t *testing.T) {
	detector := NewAlertDetector(AlertConfig{})
	now := testfixtures.ReferenceTime()

	session := testfixtures.NewSessionFixture(
		testfixtures.WithSessionStartedAt(now.Add(-10 * time.Minute)),
	).Persistence()
	eval := &rotation.Evaluation{
		ActiveSlot: 1,
		Remaining:  20 * time.Minute,
		Next:       rotation.ActionContinue,
	}

	if alerts := detector.Detect(session, eval, now); len(alerts) != 0 {
		t.Errorf("Expected no alerts with 20m remaining, got %v", alerts)
	}
}

func TestDetect_RotationOverdueMessages(t *testing.T) {
	detector := NewAlertDetector(AlertConfig{})
	now := testfixtures.ReferenceTime()
	session := testfixtures.NewSessionFixture(
		testfixtures.WithSessionStartedAt(now.Add(-time.Hour)),
	).Persistence()

	advance := &rotation.Evaluation{ActiveSlot: 2, Next: rotation.ActionAdvance, AdvanceTo: 2, Overdue: true}
	alerts := detector.Detect(session, advance, now)
	if len(alerts) != 1 || alerts[0].Kind != AlertRotationOverdue {
		t.Fatalf("Expected rotation_overdue, got %v", alerts)
	}
	if !strings.Contains(alerts[0].Message, "Troca") {
		t.Errorf("Expected hand-off message, got %q", alerts[0].Message)
	}

	finalize := &rotation.Evaluation{ActiveSlot: 1, Next: rotation.ActionFinalize, Overdue: true}
	alerts = detector.Detect(session, finalize, now)
	if len(alerts) != 1 || !strings.Contains(alerts[0].Message, "finalizada") {
		t.Errorf("Expected finalize message, got %v", alerts)
	}
}

func TestDetect_ArrivalOverdue(t *testing.T) {
	detector := NewAlertDetector(AlertConfig{ArrivalThreshold: 10 * time.Minute})
	start := testfixtures.ReferenceTime()

	session := testfixtures.NewSessionFixture(
		testfixtures.WithSessionSchedule(start, start.Add(30*time.Minute)),
	).Persistence()

	if alerts := detector.Detect(session, nil, start.Add(10*time.Minute)); len(alerts) != 0 {
		t.Errorf("Expected no alert exactly at threshold, got %v", alerts)
	}

	alerts := detector.Detect(session, nil, start.Add(15*time.Minute))
	if len(alerts) != 1 || alerts[0].Kind != AlertArrivalOverdue {
		t.Fatalf("Expected arrival_overdue, got %v", alerts)
	}
	if !strings.Contains(alerts[0].Message, "15 min") {
		t.Errorf("Expected lateness in message, got %q", alerts[0].Message)
	}
}

func TestDetect_SilentStatuses(t *testing.T) {
	detector := NewAlertDetector(AlertConfig{})
	now := testfixtures.ReferenceTime().Add(5 * time.Hour)

	for _, status := range []string{persistence.StatusCompleted, persistence.StatusNoShow, persistence.StatusArrived} {
		session := testfixtures.NewSessionFixture(
			testfixtures.WithSessionStatus(status),
		).Persistence()
		if alerts := detector.Detect(session, nil, now); len(alerts) != 0 {
			t.Errorf("status %s: expected no alerts, got %v", status, alerts)
		}
	}
}
