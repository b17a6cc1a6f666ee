package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"time"
)

const baseURL = "http://localhost:8080"

// Manual smoke test for a running server: drives one full clarify →
// finalize exchange through /ask, reusing the session cookie between
// turns.
func main() {
	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatalf("creating cookie jar: %v", err)
	}
	client := &http.Client{Jar: jar, Timeout: 5 * time.Minute}

	fmt.Println("Turn 1: asking for clarifying questions...")
	first, err := ask(client, "Build me a website for my cocoa farm")
	if err != nil {
		log.Fatalf("first turn failed: %v", err)
	}
	fmt.Println(first["response"])

	fmt.Println("Turn 2: answering and requesting the full chain...")
	second, err := ask(client, "It should list my beans, take orders, and look warm and earthy")
	if err != nil {
		log.Fatalf("second turn failed: %v", err)
	}
	fmt.Println("--- summary ---")
	fmt.Println(second["summary"])
	fmt.Println("--- final response ---")
	fmt.Println(second["final_response"])
}

func ask(client *http.Client, prompt string) (map[string]string, error) {
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/ask", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body["error"])
	}
	return body, nil
}
