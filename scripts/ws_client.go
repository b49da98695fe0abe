// Package main runs a demo WebSocket client for conversion events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func post(base, path string, body []byte) (*http.Response, error) {
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "master")
	return http.DefaultClient.Do(req)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Seed a package and a trip request, then start an assisted conversion
	resp, err := post(base, "/v1/packages", []byte(`{"packages":[{"name":"Noronha Essencial","category":"Fernando de Noronha","basePrice":2000,"durationDays":4,"maxGuests":4,"description":"mergulho e trilhas"}]}`))
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()

	resp, err = post(base, "/v1/requests", []byte(`{"requests":[{"destination":"Fernando de Noronha","budget":2000,"durationDays":4,"groupSize":2,"activities":["mergulho"]}]}`))
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, base+"/v1/requests", nil)
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "master")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var listResp struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	if len(listResp.Items) == 0 {
		log.Fatal("no trip requests returned")
	}
	requestID := listResp.Items[0].ID

	resp, err = post(base, "/v1/conversions", []byte(fmt.Sprintf(`{"requestId":%q,"conversionType":"assisted"}`, requestID)))
	if err != nil {
		log.Fatal(err)
	}
	var startResp struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&startResp); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	sessionID := startResp.SessionID
	log.Printf("Session ID: %s", sessionID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/graphql/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "master")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// connection_init
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	// subscribe to conversionEvents
	payload := map[string]any{
		"query":     "subscription($sessionId: ID!) { conversionEvents(sessionId: $sessionId) }",
		"variables": map[string]any{"sessionId": sessionID},
	}
	pl, _ := json.Marshal(payload)
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger a matching event on the session
	time.Sleep(500 * time.Millisecond)
	resp, _ = post(base, "/v1/conversions/"+sessionID+"/matching", []byte("{}"))
	if resp != nil {
		_ = resp.Body.Close()
	}

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
