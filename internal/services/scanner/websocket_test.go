package scanner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/models"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", want, hub.ClientCount())
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub := NewHub(common.NewSilentLogger())
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	sent := models.ScanEvent{
		Type:      models.ScanEventPortFound,
		Port:      &models.PortStatus{Port: 8505, Responded: true, Verified: true},
		Found:     1,
		Timestamp: time.Now(),
	}
	hub.Broadcast(sent)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var got models.ScanEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Type != models.ScanEventPortFound {
		t.Errorf("expected %s, got %s", models.ScanEventPortFound, got.Type)
	}
	if got.Port == nil || got.Port.Port != 8505 || !got.Port.Verified {
		t.Errorf("unexpected port payload: %+v", got.Port)
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub := NewHub(common.NewSilentLogger())
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestScan_EmitsLifecycleEvents(t *testing.T) {
	hub := NewHub(common.NewSilentLogger())
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	port := startApp(t, "streamlit dashboard")
	cfg := common.NewDefaultConfig()
	cfg.Gateway.UpstreamHost = "127.0.0.1"
	cfg.Scanner.ConnectTimeout = "200ms"
	cfg.Scanner.VerifyTimeout = "1s"
	svc := NewService(common.NewSilentLogger(), cfg, hub)

	if _, err := svc.Scan(context.Background(), models.ScanRequest{PortStart: port, PortEnd: port}); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	var types []string
	for i := 0; i < 3; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage failed: %v", err)
		}
		var event models.ScanEvent
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		types = append(types, event.Type)
	}

	want := []string{models.ScanEventStarted, models.ScanEventPortFound, models.ScanEventCompleted}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}
