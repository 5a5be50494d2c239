// Package natsx holds the JetStream setup shared by event producers and
// consumers.
package natsx

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

const ConsultationStream = "CONSULTATIONS"

// ConsultationSubjects covers every consultation.<event>.v<n> subject.
var ConsultationSubjects = []string{"consultation.>"}

// EnsureStream creates the stream if it does not exist yet. Messages are
// kept a week and deduplicated on Nats-Msg-Id for two minutes.
func EnsureStream(js nats.JetStreamManager, name string, subjects []string) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:       name,
		Subjects:   subjects,
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Duplicates: 2 * time.Minute,
	})
	if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil
	}
	return err
}
