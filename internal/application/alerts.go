package application

import (
	"fmt"
	"time"

	"github.com/example/therapy-scheduler/internal/persistence"
	"github.com/example/therapy-scheduler/internal/rotation"
)

// AlertConfig tunes the attention thresholds shown on the agenda board.
type AlertConfig struct {
	// RotationWarnWindow is how long before a hand-off the imminent alert
	// starts firing.
	RotationWarnWindow time.Duration
	// ArrivalThreshold is how late a scheduled patient may be before the
	// arrival alert fires.
	ArrivalThreshold time.Duration
}

// DefaultAlertConfig returns the thresholds the clinic runs today.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		RotationWarnWindow: 2 * time.Minute,
		ArrivalThreshold:   10 * time.Minute,
	}
}

// AlertDetector derives attention items from session state at an instant.
// Messages are user-facing and localized for the clinic staff.
type AlertDetector struct {
	config AlertConfig
}

// NewAlertDetector returns a detector with the given thresholds; zero values
// fall back to the defaults.
func NewAlertDetector(config AlertConfig) *AlertDetector {
	defaults := DefaultAlertConfig()
	if config.RotationWarnWindow <= 0 {
		config.RotationWarnWindow = defaults.RotationWarnWindow
	}
	if config.ArrivalThreshold <= 0 {
		config.ArrivalThreshold = defaults.ArrivalThreshold
	}
	return &AlertDetector{config: config}
}

// Detect returns the alerts active for one session at the given instant. The
// evaluation may be nil for sessions that are not running.
func (d *AlertDetector) Detect(session persistence.TherapySession, eval *rotation.Evaluation, now time.Time) []Alert {
	var alerts []Alert

	switch session.Status {
	case persistence.StatusScheduled:
		late := now.Sub(session.ScheduledStart)
		if late > d.config.ArrivalThreshold {
			alerts = append(alerts, Alert{
				Kind:      AlertArrivalOverdue,
				SessionID: session.ID,
				RoomID:    session.RoomID,
				Message:   fmt.Sprintf("Paciente %s atrasado há %d min", session.PatientLabel, int(late.Minutes())),
			})
		}
	case persistence.StatusInProgress:
		if eval == nil {
			return alerts
		}
		if eval.Overdue {
			message := "Troca de profissional pendente"
			if eval.Next == rotation.ActionFinalize {
				message = "Sessão deve ser finalizada"
			}
			alerts = append(alerts, Alert{
				Kind:      AlertRotationOverdue,
				SessionID: session.ID,
				RoomID:    session.RoomID,
				Message:   message,
			})
		} else if eval.Remaining > 0 && eval.Remaining <= d.config.RotationWarnWindow {
			alerts = append(alerts, Alert{
				Kind:      AlertRotationImminent,
				SessionID: session.ID,
				RoomID:    session.RoomID,
				Message:   fmt.Sprintf("Troca de profissional em %d min", ceilMinutes(eval.Remaining)),
			})
		}
	}

	return alerts
}

func ceilMinutes(d time.Duration) int {
	minutes := int(d / time.Minute)
	if d%time.Minute > 0 {
		minutes++
	}
	return minutes
}
