package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "API base URL")
	pairCount = flag.Int("pairs", 50, "number of editor pairs, each pair shares one document")
	editCount = flag.Int("edits", 20, "documentUpdate events per editor")
)

type authResponse struct {
	Token string `json:"token"`
	User  *struct {
		ID int `json:"id"`
	} `json:"user"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var received atomic.Int64

func main() {
	flag.Parse()
	log.Printf("🔥 STARTING STRESS TEST: %d editors, %d edits each...", *pairCount*2, *editCount)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()

	log.Printf("✅ LOAD TEST COMPLETE in %s, %d frames received", time.Since(start).Round(time.Millisecond), received.Load())
}

func runPair(pairID int) {
	run := time.Now().UnixNano()
	emailA := fmt.Sprintf("lt_%d_a_%d@load.test", pairID, run)
	emailB := fmt.Sprintf("lt_%d_b_%d@load.test", pairID, run)
	pass := "password123"

	tokenA, _ := authenticate(emailA, pass)
	tokenB, idB := authenticate(emailB, pass)
	if tokenA == "" || tokenB == "" {
		return // Failed auth
	}

	// A owns the document and shares it with B
	docID := createDocument(tokenA, fmt.Sprintf("Load test %d", pairID))
	if docID == "" || !shareDocument(tokenA, docID, idB) {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamEdits(&wsWg, tokenA, docID, emailA)
	go spamEdits(&wsWg, tokenB, docID, emailB)
	wsWg.Wait()
}

// authenticate registers (ignores error if exists) and logs in
func authenticate(email, password string) (string, int) {
	name := strings.SplitN(email, "@", 2)[0]
	if resp, err := postJSON("/api/auth/register", "", map[string]string{"name": name, "email": email, "password": password}); err == nil {
		resp.Body.Close()
	}

	resp, err := postJSON("/api/auth/login", "", map[string]string{"email": email, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", email, err)
		return "", 0
	}
	defer resp.Body.Close()

	var data authResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil || data.User == nil {
		log.Printf("❌ Login Failed [%s]: status %d", email, resp.StatusCode)
		return "", 0
	}
	return data.Token, data.User.ID
}

func createDocument(token, title string) string {
	resp, err := postJSON("/api/documents", token, map[string]string{"title": title, "content": ""})
	if err != nil {
		log.Printf("❌ Create Document Failed: %v", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Printf("❌ Create Document Failed: status %d", resp.StatusCode)
		return ""
	}

	var doc struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&doc)
	return doc.ID
}

func shareDocument(token, docID string, userID int) bool {
	resp, err := postJSON("/api/documents/"+docID+"/share", token, map[string]int{"userId": userID})
	if err != nil {
		log.Printf("❌ Share Failed: %v", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func spamEdits(wg *sync.WaitGroup, token, docID, user string) {
	defer wg.Done()

	wsURL := "ws" + strings.TrimPrefix(*baseURL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			received.Add(1)
		}
	}()

	if err := send(conn, "joinDocument", map[string]string{"documentId": docID}); err != nil {
		log.Printf("❌ Join Fail [%s]: %v", user, err)
		return
	}

	for i := 0; i < *editCount; i++ {
		err := send(conn, "documentUpdate", map[string]string{
			"documentId": docID,
			"title":      "Load test",
			"content":    fmt.Sprintf("edit %d from %s", i, user),
		})
		if err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			break
		}
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	// let the last broadcasts arrive before closing
	time.Sleep(200 * time.Millisecond)
	log.Printf("✅ %s finished sending %d edits", user, *editCount)
}

func send(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(frame{Event: event, Data: raw})
}

func postJSON(endpoint, token string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	req, err := http.NewRequest(http.MethodPost, *baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
