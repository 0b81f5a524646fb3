package router

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"airfield-sentinel-go/internal/models"
)

const eventLogName = "events.jsonl"

var ErrNoEvents = errors.New("no events logged for incident")

// EventLog appends one JSON object per line to <root>/<incident>/events.jsonl.
// Lines are never rewritten.
type EventLog struct {
	root string
}

func NewEventLog(root string) *EventLog {
	return &EventLog{root: root}
}

func (l *EventLog) Root() string { return l.root }

// Path returns the log file for an incident.
func (l *EventLog) Path(incidentID string) string {
	return filepath.Join(models.IncidentDir(l.root, incidentID), eventLogName)
}

func (l *EventLog) Append(ev models.IncidentEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	path := l.Path(ev.IncidentID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create incident dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	// One write per line so a crash leaves at most a torn final line
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("append event: %w", err)
	}
	return f.Close()
}

// Read returns every well-formed event for an incident in log order. Torn or
// corrupt lines are skipped.
func (l *EventLog) Read(incidentID string) ([]models.IncidentEvent, error) {
	f, err := os.Open(l.Path(incidentID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoEvents
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var out []models.IncidentEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var ev models.IncidentEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read event log: %w", err)
	}
	return out, nil
}
