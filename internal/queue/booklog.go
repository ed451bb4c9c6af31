package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// BookingLog appends one human readable line per booking event to
// <dir>/booking.log.
type BookingLog struct {
	dir string
	mu  sync.Mutex
}

func NewBookingLog(dir string) *BookingLog { return &BookingLog{dir: dir} }

// Handle satisfies Handler.
func (l *BookingLog) Handle(_ context.Context, body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	line := FormatLine(ev)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single log line.
func FormatLine(ev BookingEvent) string {
	ts := ev.OccurredAt.UTC().Format("2006-01-02T15:04:05Z")
	if b := ev.Booking; b != nil {
		return fmt.Sprintf("[%s] %s | booking_id=%d | email=%s | product=%q | qty=%d | total=%s | status=%s | payment=%s/%s\n",
			ts, ev.Type, b.ID, b.Email, b.ProductName, b.Quantity, b.TotalPrice.StringFixed(2), b.Status,
			b.PaymentMethod, b.PaymentStatus)
	}
	if p := ev.Pending; p != nil {
		return fmt.Sprintf("[%s] %s | intent=%s | email=%s | product=%q | qty=%d | total=%s | note=%q\n",
			ts, ev.Type, p.PaymentIntentID, p.Email, p.ProductName, p.Quantity, p.TotalPrice.StringFixed(2), ev.Note)
	}
	return fmt.Sprintf("[%s] %s | event_id=%s\n", ts, ev.Type, ev.EventID)
}
