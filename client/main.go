package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/trailparty/network"
)

// send wraps payload in an envelope and writes it to the server.
func send(c *websocket.Conn, event string, payload any) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, frame)
}

// printFrame shows narrative text as is and every other event as raw JSON.
func printFrame(message []byte) {
	var env network.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.Printf("<- RECV invalid frame: %s", message)
		return
	}
	switch env.Event {
	case network.EventNarrative:
		var p network.NarrativePayload
		if err := json.Unmarshal(env.Data, &p); err == nil {
			log.Printf("\n%s\n", p.Text)
			return
		}
	case network.EventUserChatUpdate:
		var p network.ChatUpdatePayload
		if err := json.Unmarshal(env.Data, &p); err == nil {
			log.Printf("[chat] %s: %s", p.UserID, p.Message)
			return
		}
	}
	log.Printf("<- RECV %s: %s", env.Event, env.Data)
}

func main() {
	addr := flag.String("addr", "localhost:3000", "server host:port")
	roomID := flag.String("room", "oregon", "room to join")
	userID := flag.String("user", uuid.NewString(), "stable user id")
	name := flag.String("name", "", "display name")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			printFrame(message)
		}
	}()

	join := network.JoinRoomRequest{RoomID: *roomID, UserID: *userID, ChosenName: *name}
	if err := send(c, network.EventJoinRoom, join); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Joined. Commands: /start /phase /pause /resume /chat <msg> /name <name> /quit. Anything else is your response.")

	lines := make(chan string)
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			lines <- strings.TrimSpace(reader.Text())
		}
		close(lines)
	}()

	room := network.RoomRequest{RoomID: *roomID}
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case text, ok := <-lines:
			if !ok || text == "/quit" {
				return
			}
			if text == "" {
				continue
			}

			cmd, arg, _ := strings.Cut(text, " ")
			switch cmd {
			case "/start":
				err = send(c, network.EventStartGame, room)
			case "/phase":
				err = send(c, network.EventStartDecisionPhase, room)
			case "/pause":
				err = send(c, network.EventPauseTimer, room)
			case "/resume":
				err = send(c, network.EventResumeTimer, room)
			case "/chat":
				err = send(c, network.EventUserChatMessage, network.ChatMessageRequest{RoomID: *roomID, UserID: *userID, Message: arg})
			case "/name":
				err = send(c, network.EventUpdateCharacterInfo, network.UpdateCharacterInfoRequest{
					RoomID: *roomID, UserID: *userID, Info: map[string]any{"name": arg},
				})
			default:
				err = send(c, network.EventRoomResponse, network.RoomResponseRequest{RoomID: *roomID, UserID: *userID, Message: text})
			}
			if err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
