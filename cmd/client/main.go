package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
)

var (
	addr  = flag.String("addr", "localhost:8080", "http service address")
	token = flag.String("token", "", "session token (dev format: userId:nickname:roomId)")
)

type frame struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	Nickname  string `json:"nickname"`
	Content   string `json:"content"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
	Timestamp string `json:"timestamp"`
}

func main() {
	flag.Parse()
	if *token == "" {
		log.Fatal("-token is required")
	}

	conn := connectWebSocket()
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go readFrames(conn, done)

	fmt.Println("Write messages (press Enter to send):")
	writeMessages(conn, interrupt, done)
}

func connectWebSocket() *websocket.Conn {
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: "token=" + url.QueryEscape(*token)}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Failed to connect to WebSocket server: %v", err)
	}
	return conn
}

func readFrames(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("Error reading message: %v", err)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("Error parsing frame: %v", err)
			continue
		}

		switch f.Type {
		case "CONNECTION_SUCCESS":
			fmt.Printf("Connected to %s\n", f.RoomID)
		case "ERROR":
			fmt.Printf("Rejected: %s (%s)\n", f.Message, f.ErrorCode)
		case "CHAT_MESSAGE":
			fmt.Printf("\n[%s] %s: %s\n", f.Timestamp, f.Nickname, f.Content)
		default:
			fmt.Printf("\n[%s] %s\n", f.Timestamp, f.Content)
		}
	}
}

func writeMessages(conn *websocket.Conn, interrupt chan os.Signal, done chan struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection...")
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
				log.Printf("Error during close: %v", err)
			}
			return
		default:
			if scanner.Scan() {
				content := scanner.Text()
				if content == "" {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
					log.Printf("Error sending message: %v", err)
					return
				}
			}
		}
	}
}
