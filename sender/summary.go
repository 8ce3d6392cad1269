package sender

import "time"

// Summary is the JSON form of a Result.
type Summary struct {
	MessageID   string    `json:"message_id"`
	Destination string    `json:"destination"`
	Timestamp   time.Time `json:"timestamp"`
	Headers     int       `json:"headers"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// Summary renders the result with conversion warnings as plain strings.
func (r *Result) Summary() Summary {
	s := Summary{
		MessageID:   r.MessageID,
		Destination: r.Destination.String(),
		Timestamp:   r.Timestamp.UTC(),
		Headers:     r.Headers,
	}
	for _, w := range r.Warnings {
		s.Warnings = append(s.Warnings, w.Error())
	}
	return s
}
