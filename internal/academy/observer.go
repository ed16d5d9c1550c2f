package academy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-academy/internal/catalog"
)

// observer persists one learner's session transitions.
type observer struct {
	app    *App
	userID string
}

func (o *observer) ProgressChanged(course catalog.Course, percent int) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	if err := o.app.ledger.Set(ctx, o.userID, course.ID, percent); err != nil {
		slog.Error("failed to record progress", "user_id", o.userID, "course_id", course.ID, "error", err)
	}
}

// CourseCompleted awards the certificate. An error makes the session report
// completion again on its next update at 100%.
func (o *observer) CourseCompleted(course catalog.Course) error {
	a := o.app
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	cert, created, err := a.issuer.Award(ctx, o.userID, course.Title, a.userName(o.userID))
	if err != nil {
		slog.Error("failed to award certificate", "user_id", o.userID, "course_id", course.ID, "error", err)
		return fmt.Errorf("awarding certificate: %w", err)
	}

	a.metrics.CourseCompleted(course.ID)
	a.logEvent(Event{UserID: o.userID, CourseID: course.ID, EventType: EventCourseCompleted})
	if created {
		a.metrics.CertificateIssued()
		a.logEvent(Event{
			UserID:    o.userID,
			CourseID:  course.ID,
			EventType: EventCertificateIssued,
			Data:      map[string]any{"serial": cert.Serial, "date": cert.Date},
		})
	}
	return nil
}

func (o *observer) CourseUnlocked(course catalog.Course) {
	o.app.courseUnlocked(o.userID, course)
}
