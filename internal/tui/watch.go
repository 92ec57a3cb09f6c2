package tui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"fleetsim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

const reconnectDelay = 2 * time.Second

// Run renders the watch TUI, fed from the admin API at baseURL, until the
// user quits or ctx is cancelled.
func Run(ctx context.Context, baseURL string) error {
	p := tea.NewProgram(newModel(), tea.WithAltScreen(), tea.WithContext(ctx))
	go streamEvents(ctx, baseURL, p)
	_, err := p.Run()
	return err
}

// streamEvents keeps a subscription to the admin event stream alive,
// reconnecting after transient failures.
func streamEvents(ctx context.Context, baseURL string, p teaProgram) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	for {
		if err := snapshot(ctx, baseURL, p); err != nil {
			p.Send(connMsg{connected: false, err: err})
		}
		if err := subscribe(ctx, baseURL, p); err != nil {
			p.Send(connMsg{connected: false, err: err})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// snapshot seeds the table with the latest event per mission.
func snapshot(ctx context.Context, baseURL string, p teaProgram) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/telemetry", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telemetry snapshot: status %d", resp.StatusCode)
	}
	var events []telemetry.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return err
	}
	for _, e := range events {
		p.Send(eventMsg{e})
	}
	return nil
}

func subscribe(ctx context.Context, baseURL string, p teaProgram) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/events", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream: status %d", resp.StatusCode)
	}
	p.Send(connMsg{connected: true})

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e telemetry.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err != nil {
			continue
		}
		p.Send(eventMsg{e})
	}
	return scanner.Err()
}
